package main

import "github.com/tripgenie/tripgenie-backend/internal/cli"

func main() {
	cli.Execute()
}
