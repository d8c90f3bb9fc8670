package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"etcapply/internal/synth"
)

var stockInFlags struct {
	carNum string
	obuNo  string
	etcSn  string
}

var stockInCmd = &cobra.Command{
	Use:   "stock-in",
	Short: "Insert an OBU + ETC card pair into device stock for a plate",
	RunE:  runStockIn,
}

func init() {
	f := stockInCmd.Flags()
	f.StringVar(&stockInFlags.carNum, "car-num", "", "Plate number (required)")
	f.StringVar(&stockInFlags.obuNo, "obu-no", "", "OBU number (random when empty)")
	f.StringVar(&stockInFlags.etcSn, "etc-sn", "", "ETC card number (random when empty)")

	_ = stockInCmd.MarkFlagRequired("car-num")
}

func runStockIn(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dao, err := openDAO(cfg)
	if err != nil {
		return err
	}
	defer dao.Close()

	gen := synth.Default()
	obuNo, etcSn := stockInFlags.obuNo, stockInFlags.etcSn
	if obuNo == "" {
		obuNo = gen.RandomOBNNumber()
	}
	if etcSn == "" {
		etcSn = gen.RandomETCNumber()
	}
	activation := time.Now().Format("2006-01-02 15:04:05")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := dao.StockIn(ctx, stockInFlags.carNum, obuNo, etcSn, activation); err != nil {
		return err
	}

	rows, err := dao.ListStock(ctx, stockInFlags.carNum)
	if err != nil {
		return err
	}
	t := newTable(cmd.OutOrStdout(), "newstock_id", "type", "device_no", "car_num", "create_time")
	for _, r := range rows {
		t.AppendRow([]interface{}{r.NewstockID, r.Type, r.InternalDeviceNo, r.CarNum, r.CreateTime.Format("2006-01-02 15:04:05")})
	}
	t.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "stocked obu=%s etc=%s\n", obuNo, etcSn)
	return nil
}
