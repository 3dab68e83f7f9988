// Package config は、アプリケーションの設定ファイル(config.json)の構造定義と、
// その読み込み、既定値とのマージに関する機能を提供します。
package config

import (
	"os"
	"path/filepath"
)

// DefaultConcurrency は、同時ダウンロード数の既定値です。
const DefaultConcurrency = 5

// Config は config.json ファイル全体を表すルート構造体です。
type Config struct {
	ConfigVersion          string          `json:"config_version"`
	OutputDirectory        string          `json:"output_directory,omitempty"`
	MaxConcurrentDownloads int             `json:"max_concurrent_downloads"`
	Network                NetworkSettings `json:"network"`
	PageAdapter            string          `json:"page_adapter,omitempty"`
	EnableLogFile          bool            `json:"enable_log_file"`
	LogFilePath            string          `json:"log_file_path,omitempty"`
}

// NetworkSettings は、HTTPリクエストに関するグローバルな設定を保持します。
type NetworkSettings struct {
	UserAgent      string            `json:"user_agent"`
	DefaultHeaders map[string]string `json:"default_headers"`
	// RequestTimeoutMillis が0以下の場合、タイムアウトは設定されません。
	RequestTimeoutMillis int `json:"request_timeout_ms"`
}

// Default は、設定ファイルがない場合に使用する設定を返します。
func Default() *Config {
	return &Config{
		ConfigVersion:          compatibleVersion,
		MaxConcurrentDownloads: DefaultConcurrency,
		Network: NetworkSettings{
			UserAgent: "imgdown/1.0",
		},
		PageAdapter: "generic",
	}
}

// DefaultOutputDirectory は、ユーザーのホームディレクトリ配下の既定の保存先を返します。
func DefaultOutputDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Pictures", "imgdown_downloads"), nil
}
