package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate 检查加载结果，所有问题一次性返回，每条以 yaml 路径开头
func (c *Config) Validate() error {
	var errs []error
	bad := func(path, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %s", path, fmt.Sprintf(format, args...)))
	}

	if !validPort(c.Server.HTTPPort) {
		bad("server.http_port", "invalid HTTP port %d", c.Server.HTTPPort)
	}
	// 0 关闭指标端口
	if c.Server.MetricsPort != 0 && !validPort(c.Server.MetricsPort) {
		bad("server.metrics_port", "invalid metrics port %d", c.Server.MetricsPort)
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		bad("server.metrics_port", "must differ from server.http_port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		bad("server.tls_cert_file", "server.tls_cert_file and server.tls_key_file must be set together")
	}

	if c.Breaker.Threshold < 1 {
		bad("breaker.threshold", "must be at least 1")
	}
	if c.Breaker.Cooldown <= 0 {
		bad("breaker.cooldown", "must be positive")
	}
	if c.Router.Retries < 1 {
		bad("router.retries", "must be at least 1")
	}
	if c.Router.Timeout <= 0 {
		bad("router.timeout", "must be positive")
	}

	if c.Session.Provider == "" {
		bad("session.provider", "is required")
	}
	if c.Session.MaxSessions < 0 {
		bad("session.max_sessions", "must not be negative")
	}
	if c.Speech.TTSProvider == "" {
		bad("speech.tts_provider", "is required")
	}
	if c.Speech.STTProvider == "" {
		bad("speech.stt_provider", "is required")
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			bad("database.driver", "unsupported database driver %q", c.Database.Driver)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

// DSN 返回 gorm 驱动使用的连接串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		pairs := []string{
			"host=" + pgValue(d.Host),
			"port=" + strconv.Itoa(d.Port),
			"user=" + pgValue(d.User),
			"password=" + pgValue(d.Password),
			"dbname=" + pgValue(d.Name),
			"sslmode=" + pgValue(d.SSLMode),
		}
		return strings.Join(pairs, " ")
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// pgValue 按 libpq 关键字格式转义：空值或含空白、引号、反斜杠时加单引号
func pgValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " \t\n'\\") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
