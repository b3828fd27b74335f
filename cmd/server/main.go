package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/yurifrl/feedscan/pkg/config"
	"github.com/yurifrl/feedscan/pkg/ocr"
	"github.com/yurifrl/feedscan/pkg/server"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "feedscan",
	})

	flags := pflag.NewFlagSet("feedscan-server", pflag.ExitOnError)
	cfgFile := flags.StringP("config", "c", "", "Config file (default is config.yaml)")
	flags.String("addr", "", "Listen address (default 0.0.0.0:3000)")
	flags.String("upload-dir", "", "Directory for in-flight uploads")
	flags.String("tesseract", "", "Path to the tesseract binary")
	flags.Int("psm", 6, "Tesseract page segmentation mode")
	flags.String("lang", "", "Tesseract language, e.g. eng")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Build(*cfgFile, flags)
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	srv := server.New(cfg, logger, ocr.Auto{Images: ocr.NewTesseract(cfg.OCR)})
	logger.Info("starting server", "addr", cfg.Server.Addr)
	if err := srv.Start(cfg.Server.Addr); err != nil {
		logger.Fatal("server error", "err", err)
	}
}
