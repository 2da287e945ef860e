package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/model"
)

// DefaultInstancePrefix names positional instances instance1..N.
const DefaultInstancePrefix = "instance"

// Keys of the comma-separated instance lists.
const (
	KeyMoodleURLs   = "moodle_urls"
	KeyMoodleTokens = "moodle_tokens"
)

// Resolver names instances from parallel comma-separated URL and token lists.
type Resolver struct {
	// Prefix of positional names; empty means DefaultInstancePrefix.
	Prefix string
}

var defaultResolver = Resolver{}

// Parse uses the default prefix. See Resolver.Parse.
func Parse(urls, tokens string) ([]model.InstanceConfig, error) {
	return defaultResolver.Parse(urls, tokens)
}

// Resolve uses the default prefix. See Resolver.Resolve.
func Resolve(name, urls, tokens string) (model.InstanceConfig, error) {
	return defaultResolver.Resolve(name, urls, tokens)
}

func (r Resolver) prefix() string {
	if r.Prefix == "" {
		return DefaultInstancePrefix
	}
	return r.Prefix
}

// Parse pairs the i-th URL with the i-th token after dropping empty entries.
func (r Resolver) Parse(urls, tokens string) ([]model.InstanceConfig, error) {
	if strings.TrimSpace(urls) == "" || strings.TrimSpace(tokens) == "" {
		return nil, fmt.Errorf("%w: both URLs and tokens must be provided", errs.ErrConfiguration)
	}
	us := splitList(urls)
	ts := splitList(tokens)
	if len(us) != len(ts) {
		return nil, fmt.Errorf("%w: number of URLs (%d) must match number of tokens (%d)",
			errs.ErrConfiguration, len(us), len(ts))
	}
	if len(us) == 0 {
		return nil, fmt.Errorf("%w: no instances configured", errs.ErrConfiguration)
	}

	out := make([]model.InstanceConfig, len(us))
	for i := range us {
		out[i] = model.InstanceConfig{
			URL:      us[i],
			Token:    ts[i],
			Instance: r.prefix() + strconv.Itoa(i+1),
		}
	}
	return out, nil
}

// Resolve returns the configuration of the named instance.
func (r Resolver) Resolve(name, urls, tokens string) (model.InstanceConfig, error) {
	all, err := r.Parse(urls, tokens)
	if err != nil {
		return model.InstanceConfig{}, err
	}
	names := make([]string, len(all))
	for i, c := range all {
		if c.Instance == name {
			return c, nil
		}
		names[i] = c.Instance
	}
	return model.InstanceConfig{}, fmt.Errorf("%w: instance %q not found, available: %s",
		errs.ErrConfiguration, name, strings.Join(names, ", "))
}

// ResolveInstance looks up <name>_url and <name>_token first and falls back to
// the MOODLE_URLS/MOODLE_TOKENS lists.
func (r Resolver) ResolveInstance(v *viper.Viper, name string) (model.InstanceConfig, error) {
	url := strings.TrimSpace(v.GetString(name + "_url"))
	token := strings.TrimSpace(v.GetString(name + "_token"))
	if url != "" && token != "" {
		return model.InstanceConfig{URL: url, Token: token, Instance: name}, nil
	}

	urls, tokens := v.GetString(KeyMoodleURLs), v.GetString(KeyMoodleTokens)
	if strings.TrimSpace(urls) == "" || strings.TrimSpace(tokens) == "" {
		return model.InstanceConfig{}, fmt.Errorf(
			"%w: missing moodle configuration for %s; set either %s and %s, or MOODLE_URLS and MOODLE_TOKENS",
			errs.ErrConfiguration, name, strings.ToUpper(name+"_url"), strings.ToUpper(name+"_token"))
	}
	return r.Resolve(name, urls, tokens)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
