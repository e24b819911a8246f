package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/danmuck/defectctl/internal/config"
)

func main() {
	kind := flag.String("kind", config.KindServer, "config kind: server|client")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	show := flag.Bool("show", false, "print the effective config of -input (defaults when empty)")
	input := flag.String("input", "", "config path for -validate and -show (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	switch {
	case *validate:
		path := pathFor(*kind, *input)
		if err := validateFile(*kind, path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
	case *show:
		out, err := effective(*kind, *input)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Print(string(out))
	default:
		target := pathFor(*kind, *output)
		if err := config.WriteTemplate(target, *kind, *force); err != nil {
			log.Fatal(err)
		}
		log.Printf("Wrote %s config template to %s", *kind, target)
	}
}

func pathFor(kind, path string) string {
	if path != "" {
		return path
	}
	switch kind {
	case config.KindServer:
		return "cmd/defectd/config.toml"
	case config.KindClient:
		return "cmd/defectctl/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

// validateFile rejects unknown keys, then loads the file the way the binary
// would.
func validateFile(kind, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := config.CheckStrict(kind, data); err != nil {
		return err
	}
	switch kind {
	case config.KindServer:
		_, err = config.LoadServer(path)
	case config.KindClient:
		_, err = config.LoadClient(path)
	}
	return err
}

func effective(kind, path string) ([]byte, error) {
	switch kind {
	case config.KindServer:
		cfg := config.DefaultServer()
		if path != "" {
			loaded, err := config.LoadServer(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
		return config.RenderServer(cfg)
	case config.KindClient:
		cfg := config.DefaultClient()
		if path != "" {
			loaded, err := config.LoadClient(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
		return config.RenderClient(cfg)
	default:
		return nil, fmt.Errorf("unknown kind: %s", kind)
	}
}
