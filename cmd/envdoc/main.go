// Command envdoc prints the environment variables recognized by the
// server, generated from the config structure.
package main

import (
	"fmt"

	"imgguard/internal/config"
)

func main() {
	fmt.Println("# Environment Variables")
	fmt.Println()
	fmt.Println("Environment variables override values from the configuration file.")
	fmt.Println()
	fmt.Println("## Available Environment Variables")
	fmt.Println()

	cfg := &config.Config{}
	for _, example := range config.EnvExample(cfg) {
		fmt.Printf("- `%s`\n", example)
	}

	fmt.Println()
	fmt.Println("## Examples")
	fmt.Println()
	fmt.Println("```bash")
	fmt.Println("# Override HTTP port")
	fmt.Println("export IMGGUARD_GUARD_FRONTEND_HTTP_PORT=9090")
	fmt.Println()
	fmt.Println("# Replace the upstream allowlist")
	fmt.Println("export IMGGUARD_GUARD_IMAGEPROXY_ALLOWEDHOSTS=images.example.com,cdn.example.net")
	fmt.Println()
	fmt.Println("# Point quota storage at redis")
	fmt.Println("export IMGGUARD_GUARD_STORAGE_TYPE=redis")
	fmt.Println("export IMGGUARD_GUARD_STORAGE_REDIS_ADDRESSES=localhost:6379")
	fmt.Println()
	fmt.Println("# Run with env vars only")
	fmt.Println("./imgguard")
	fmt.Println("```")
}
