package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/Darkness4/bili-auto-quality/autoquality"
	"github.com/Darkness4/bili-auto-quality/notify"
	"github.com/Darkness4/bili-auto-quality/page/cdp"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultRule matches the regular video pages.
var DefaultRule = Rule{
	Name:  "video",
	Match: `^https://www\.bilibili\.com/video/`,
}

// Config is the configuration of the watch command.
type Config struct {
	// StartURL is opened when the session starts.
	StartURL      string                     `yaml:"startURL,omitempty"`
	CookiesFile   string                     `yaml:"cookiesFile,omitempty"`
	Browser       *cdp.BrowserConfig         `yaml:"browser,omitempty"`
	DefaultParams autoquality.OptionalParams `yaml:"defaultParams,omitempty"`
	// Rules are matched in order against the URL of every navigation.
	Rules    []Rule         `yaml:"rules,omitempty"`
	Notifier NotifierConfig `yaml:"notifier,omitempty"`
}

// Rule binds parameters to the pages whose URL matches.
type Rule struct {
	Name   string                     `yaml:"name"`
	Match  string                     `yaml:"match"`
	Params autoquality.OptionalParams `yaml:"params,omitempty"`

	re *regexp.Regexp
}

// NotifierConfig configures the notifications.
type NotifierConfig struct {
	Enabled bool     `yaml:"enabled"`
	URLs    []string `yaml:"urls,omitempty"`
	// Gotify is used when no shoutrrr URL is given.
	Gotify *GotifyConfig `yaml:"gotify,omitempty"`

	notify.NotificationFormats `yaml:"notificationFormats,omitempty"`
}

// GotifyConfig addresses a Gotify server.
type GotifyConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// Compile compiles the rules. The default rule is used when there is none.
func (c *Config) Compile() error {
	if len(c.Rules) == 0 {
		c.Rules = []Rule{DefaultRule}
	}
	for i := range c.Rules {
		r := &c.Rules[i]
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i)
		}
		re, err := regexp.Compile(r.Match)
		if err != nil {
			return fmt.Errorf("invalid rule %s: %w", r.Name, err)
		}
		r.re = re
	}
	return nil
}

// MatchURL returns the first rule matching the URL.
func (c *Config) MatchURL(url string) (*Rule, bool) {
	for i := range c.Rules {
		if c.Rules[i].re != nil && c.Rules[i].re.MatchString(url) {
			return &c.Rules[i], true
		}
	}
	return nil, false
}

func loadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := &Config{}
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}
	if err := config.Compile(); err != nil {
		return nil, err
	}
	return config, nil
}

// ObserveConfig sends the config once, then again each time the file changes.
//
// The parent directory is observed so that editors replacing the file are
// supported.
func ObserveConfig(ctx context.Context, filename string, configChan chan<- *Config) {
	send := func() bool {
		config, err := loadConfig(filename)
		if err != nil {
			log.Error().Str("file", filename).Err(err).Msg("failed to load config")
			return true
		}
		select {
		case configChan <- config:
			return true
		case <-ctx.Done():
			return false
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Msg("failed to create config watcher")
		return
	}
	defer watcher.Close()

	abs, err := filepath.Abs(filename)
	if err != nil {
		abs = filename
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		log.Error().Str("file", filename).Err(err).Msg("failed to watch config")
		return
	}

	if !send() {
		return
	}

	// Writes come in bursts, reload once they settle.
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce.Reset(100 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("config watcher error")
		case <-debounce.C:
			log.Info().Msg("new config detected")
			if !send() {
				return
			}
		}
	}
}

// ConfigReloader runs handleConfig for each config, canceling the previous run
// first.
func ConfigReloader(
	ctx context.Context,
	configChan <-chan *Config,
	handleConfig func(ctx context.Context, config *Config),
) error {
	var configContext context.Context
	var configCancel context.CancelFunc
	// Channel used to assure only one handleConfig can be launched
	doneChan := make(chan struct{})

	for {
		select {
		case newConfig := <-configChan:
			if configContext != nil && configCancel != nil {
				configCancel()
				select {
				case <-doneChan:
					log.Info().Msg("loading new config")
				case <-time.After(30 * time.Second):
					log.Fatal().Msg("couldn't load a new config because of a deadlock")
				}
			}
			configContext, configCancel = context.WithCancel(ctx)
			go func(ctx context.Context) {
				log.Info().Msg("loaded new config")
				handleConfig(ctx, newConfig)
				doneChan <- struct{}{}
			}(configContext)
		case <-ctx.Done():
			if configContext == nil {
				return ctx.Err()
			}
			configCancel()

			// This assure that the `handleConfig` ends gracefully
			select {
			case <-doneChan:
				log.Info().Msg("config reloader graceful exit")
			case <-time.After(30 * time.Second):
				log.Fatal().Msg("config reloader force fatal exit")
			}

			// The context was canceled, exit the loop
			return ctx.Err()
		}
	}
}
