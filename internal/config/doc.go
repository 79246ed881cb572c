// Package config loads the lander configuration.
//
// Values start from Baseline, are overlaid by an optional YAML file (LANDER_CONFIG, or
// lander.yaml in the working directory) and then by LANDER_* environment variables. The
// result is checked by Validate before any component sees it.
package config
