package main

import (
	"flag"
	"fmt"
	"os"
)

var (
	hf         bool
	configPath string
	logLevel   string
	tileArg    string
)

func InitFlag() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&configPath, "c", "./conf/conf.toml", "set config `file`")
	flag.StringVar(&logLevel, "l", "info", "set log level (default: info)")
	flag.StringVar(&tileArg, "t", "", "render a single `z/x/y` tile instead of the regions")
	// 改变默认的 Usage
	flag.Usage = usage
	flag.Parse()

	if hf {
		flag.Usage()
		os.Exit(0)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `multitiler version: multitiler/v0.2.0
Usage: multitiler [-h] [-c filename] [-l logLevel] [-t z/x/y]
`)
	flag.PrintDefaults()
}
