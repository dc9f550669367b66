package config

// NewLoggerTo exposes newLogger to the external tests.
var NewLoggerTo = newLogger
