package main

import (
	"github.com/status-agent/cmd/agent"
)

func main() {
	agent.Execute()
}
