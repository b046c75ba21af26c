package main

import "github.com/warriorcabo/ai-orchestration-system/internal/cli"

func main() {
	cli.Execute()
}
