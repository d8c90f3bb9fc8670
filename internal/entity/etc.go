package entity

import "time"

// ApplyOrder 申请单（只读写 order_status）
type ApplyOrder struct {
	OrderID     string `gorm:"column:order_id;primaryKey;type:varchar(64)"`
	OrderStatus string `gorm:"column:order_status;type:varchar(8)"`
}

// CardUser 办卡用户
type CardUser struct {
	ID             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	CarNum         string `gorm:"column:car_num;type:varchar(16);index:idx_car_num"`
	Status         string `gorm:"column:status;type:varchar(8)"`
	ActiveStatus   int    `gorm:"column:active_status"`
	ObuNo          string `gorm:"column:obu_no;type:varchar(32)"`
	EtcSn          string `gorm:"column:etc_sn;type:varchar(32)"`
	ActivationTime string `gorm:"column:activation_time;type:varchar(32)"`
}

// DeviceStock 设备库存行，每次入库写 OBU / ETC 两行
type DeviceStock struct {
	NewstockID       int64     `gorm:"column:newstock_id;primaryKey;autoIncrement:false"`
	CardOperators    int       `gorm:"column:card_operators"`
	Status           int       `gorm:"column:status"`
	CarNum           string    `gorm:"column:car_num;type:varchar(16)"`
	StockStatus      int       `gorm:"column:stock_status"`
	Source           int       `gorm:"column:source"`
	Remark           string    `gorm:"column:remark;type:varchar(255)"`
	CreateTime       time.Time `gorm:"column:create_time"`
	DeviceCategory   int       `gorm:"column:device_category"`
	InternalDeviceNo string    `gorm:"column:internal_device_no;type:varchar(32)"`
	ExternalDeviceNo string    `gorm:"column:external_device_no;type:varchar(32)"`
	Type             int       `gorm:"column:type"`
}

// 设备类型
const (
	DeviceTypeOBU = 0
	DeviceTypeETC = 1
)

// 状态常量
const (
	OrderStatusActivated  = "7"
	CardUserStatusActive  = "1"
	CardUserActiveStatus  = 3024 // 厂商后台的激活状态码，含义未公开
	StockRemark           = "etcapply stock-in"
	StockCardOperators    = 1
	StockStatusNormal     = 1
	StockStockStatusInStk = 0
	StockSourceWarehouse  = 1
	StockDeviceCategory   = 0
)
