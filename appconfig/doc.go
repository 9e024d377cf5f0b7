// Package appconfig provides configuration loading, environment variable
// overrides, provider configuration, and file watching for the Gateway and
// System Server processes.
//
// Configuration is loaded from a YAML file, environment variables, or both,
// using Viper. Defaults are set before the file is read so that an absent
// file still yields a usable Config:
//
//	if err := appconfig.LoadConfig(); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(appconfig.Cfg.Gateway.ListenAddr)
//
// # Environment Variables
//
// Every field is also settable via an MUSICARENA_-prefixed environment
// variable (dots replaced with underscores), and the four variables the
// spec calls out by name — MINIMUM_LISTEN_TIME, GATEWAY_URL,
// SYSTEMS_BASE_URL, FLAKINESS — are additionally bound unprefixed so they
// work exactly as documented.
//
// # Provider Configuration
//
// [ProviderConfig] holds common configuration for any external provider
// (a chat model, in this codebase), including provider name, API key,
// model identifier, base URL, timeout, and a flexible Options map for
// provider-specific settings. [GetOption] retrieves typed values from the
// Options map:
//
//	temp, ok := appconfig.GetOption[float64](cfg, "temperature")
//
// # File Watching
//
// The [Watcher] interface abstracts configuration change detection.
// [FileWatcher] polls a file at regular intervals using SHA-256 content
// hashing, invoking a callback when changes are detected. No package in
// this repository starts a watcher; the registry is parsed once at startup.
//
//	watcher := appconfig.NewFileWatcher("weights.yaml", 5*time.Second)
//	err := watcher.Watch(ctx, func(newConfig any) {
//	    data := newConfig.([]byte)
//	    // re-parse and apply
//	})
package appconfig
