//go:build debug

package config

const defaultDebug = true
