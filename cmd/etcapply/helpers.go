package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"etcapply/pkg/config"
	"etcapply/pkg/infra/mysql"
	"etcapply/pkg/logger"
)

// loadConfig 加载并校验连接配置
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}
	return log, nil
}

func openDAO(cfg *config.Config) (*mysql.EtcDAO, error) {
	dsn, err := cfg.MySQLDSN()
	if err != nil {
		return nil, err
	}
	return mysql.NewEtcDAO(dsn, cfg.Tables)
}

// newTable 终端表格
func newTable(out io.Writer, header ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row(header))
	return t
}
