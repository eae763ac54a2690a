package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/BaSui01/voicebridge/config"
	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/provider/factory"

	"go.uber.org/zap"
)

// =============================================================================
// 🔍 check 命令：离线校验配置并打印路由表
// =============================================================================

// routeHop 路由链上的一个 provider
type routeHop struct {
	Route    string
	Position string // primary / fallback
	Provider string
	Status   string // ok / unsupported / missing capability / not registered
}

func (h routeHop) ok() bool { return h.Status == "ok" }

// describeRoutes 检查三条路由链上每个 provider 能否承担对应操作
func describeRoutes(cfg *config.Config, registry *provider.Registry) []routeHop {
	chains := []struct {
		route     string
		capab     provider.Capability
		primary   string
		fallbacks []string
	}{
		{"realtime", provider.CapabilityRealtime, cfg.Session.Provider, cfg.Session.Fallbacks},
		{"tts", provider.CapabilityTTS, cfg.Speech.TTSProvider, cfg.Speech.TTSFallbacks},
		{"stt", provider.CapabilitySTT, cfg.Speech.STTProvider, cfg.Speech.STTFallbacks},
	}

	var hops []routeHop
	for _, c := range chains {
		for i, id := range append([]string{c.primary}, c.fallbacks...) {
			hop := routeHop{Route: c.route, Position: "fallback", Provider: id}
			if i == 0 {
				hop.Position = "primary"
			}
			d, found := registry.Descriptor(id)
			switch {
			case !found:
				hop.Status = "not registered"
			case !d.Supported:
				hop.Status = "unsupported"
			case !d.Has(c.capab):
				hop.Status = "missing capability"
			default:
				hop.Status = "ok"
			}
			hops = append(hops, hop)
		}
	}
	return hops
}

func printRoutes(w io.Writer, hops []routeHop) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tPOSITION\tPROVIDER\tSTATUS")
	for _, h := range hops {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.Route, h.Position, h.Provider, h.Status)
	}
	_ = tw.Flush()
}

// runCheck 主 provider 不可用时以非零状态退出，降级目标不可用只告警
func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	registry, err := factory.NewRegistry(cfg.Providers, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to register providers: %v\n", err)
		os.Exit(1)
	}

	hops := describeRoutes(cfg, registry)
	printRoutes(os.Stdout, hops)

	var broken []string
	for _, h := range hops {
		if h.Position == "primary" && !h.ok() {
			broken = append(broken, h.Route+"="+h.Provider)
		}
	}
	if len(broken) > 0 {
		fmt.Fprintf(os.Stderr, "\nPrimary provider unusable: %s\n", strings.Join(broken, ", "))
		os.Exit(1)
	}
	fmt.Println("\nConfiguration OK")
}
