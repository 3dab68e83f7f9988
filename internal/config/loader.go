package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const compatibleVersion = "1.0"

// rawConfig は、設定ファイルをデコードするための中間構造体です。
// 値が省略されたかどうかを区別するため、ポインタで受け取ります。
type rawConfig struct {
	ConfigVersion          string        `json:"config_version"`
	OutputDirectory        *string       `json:"output_directory,omitempty"`
	MaxConcurrentDownloads *int          `json:"max_concurrent_downloads,omitempty"`
	Network                *networkPatch `json:"network,omitempty"`
	PageAdapter            *string       `json:"page_adapter,omitempty"`
	EnableLogFile          *bool         `json:"enable_log_file,omitempty"`
	LogFilePath            *string       `json:"log_file_path,omitempty"`
}

type networkPatch struct {
	UserAgent            *string           `json:"user_agent,omitempty"`
	DefaultHeaders       map[string]string `json:"default_headers,omitempty"`
	RequestTimeoutMillis *int              `json:"request_timeout_ms,omitempty"`
}

// LoadAndResolve は、指定されたパスから設定ファイルを読み込み、既定値にマージします。
func LoadAndResolve(path string) (*Config, error) {
	absPath, _ := filepath.Abs(path)
	cwd, _ := os.Getwd()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル '%s' の読み込みに失敗しました (Abs: '%s', Cwd: '%s'): %w", path, absPath, cwd, err)
	}
	return ParseAndResolve(data)
}

// ParseAndResolve は、設定データのバイトスライスを解析し、既定値とマージした最終的な設定を返します。
func ParseAndResolve(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError

		if errors.As(err, &syntaxErr) {
			line, col := computeLineAndColumn(data, syntaxErr.Offset)
			return nil, fmt.Errorf("設定ファイルのJSON構文エラー (行 %d, 列 %d): %w", line, col, err)
		}
		if errors.As(err, &typeErr) {
			line, col := computeLineAndColumn(data, typeErr.Offset)
			return nil, fmt.Errorf("設定ファイルの型エラー (行 %d, 列 %d, フィールド '%s'): 期待値 %v, 実際 %v - %w",
				line, col, typeErr.Field, typeErr.Type, typeErr.Value, err)
		}
		return nil, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
	}

	if raw.ConfigVersion != compatibleVersion {
		return nil, fmt.Errorf("サポートされていない設定バージョン '%s' です。'%s' が必要です。", raw.ConfigVersion, compatibleVersion)
	}

	cfg := Default()
	applyPatch(cfg, &raw)

	if cfg.MaxConcurrentDownloads < 1 {
		return nil, fmt.Errorf("max_concurrent_downloads は1以上である必要があります (値=%d)", cfg.MaxConcurrentDownloads)
	}
	return cfg, nil
}

// applyPatch は、rawの非nilフィールドをtargetに上書きします。
func applyPatch(target *Config, raw *rawConfig) {
	if raw.OutputDirectory != nil {
		target.OutputDirectory = *raw.OutputDirectory
	}
	if raw.MaxConcurrentDownloads != nil {
		target.MaxConcurrentDownloads = *raw.MaxConcurrentDownloads
	}
	if raw.PageAdapter != nil {
		target.PageAdapter = *raw.PageAdapter
	}
	if raw.EnableLogFile != nil {
		target.EnableLogFile = *raw.EnableLogFile
	}
	if raw.LogFilePath != nil {
		target.LogFilePath = *raw.LogFilePath
	}
	if n := raw.Network; n != nil {
		if n.UserAgent != nil {
			target.Network.UserAgent = *n.UserAgent
		}
		if n.DefaultHeaders != nil {
			target.Network.DefaultHeaders = n.DefaultHeaders
		}
		if n.RequestTimeoutMillis != nil {
			target.Network.RequestTimeoutMillis = *n.RequestTimeoutMillis
		}
	}
}

// computeLineAndColumn は、バイトオフセットから行番号と列番号（1始まり）を計算します。
func computeLineAndColumn(data []byte, offset int64) (int, int) {
	if offset < 0 || int(offset) > len(data) {
		return 0, 0
	}
	line := 1
	lastLineStart := 0
	for i, b := range data {
		if int64(i) == offset {
			return line, i - lastLineStart + 1
		}
		if b == '\n' {
			line++
			lastLineStart = i + 1
		}
	}
	return line, int(offset) - lastLineStart + 1
}
