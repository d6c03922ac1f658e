package main

import (
	"github.com/vpikus/asus-router-prometheus-exporter/cmd/exporter"
)

func main() {
	exporter.Execute()
}
