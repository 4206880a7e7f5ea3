// Package config resolves runtime configuration from the environment, an
// optional .env file, JSON-with-comments settings files and GEMINI.md memory
// files.
//
// Settings are read from ~/.gemini/settings.json (user scope) and
// <workspace>/.gemini/settings.json (workspace scope); fields set in the
// workspace file override the user file.
package config
