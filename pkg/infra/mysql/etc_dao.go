package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"etcapply/internal/entity"
	"etcapply/pkg/config"
	"etcapply/pkg/errorutil"
	"etcapply/pkg/idgen"
)

// DatabaseError 数据库操作失败
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Kind 错误类别
func (e *DatabaseError) Kind() errorutil.Kind { return errorutil.KindDatabase }

// EtcDAO 厂商数据库的数据访问对象
// 每个写操作单独借一个连接，退出时归还
type EtcDAO struct {
	db     *gorm.DB
	tables config.TablesConfig
	ids    *idgen.SnowflakeIDGenerator
	now    func() time.Time
}

// NewEtcDAO 创建 EtcDAO 实例
func NewEtcDAO(dsn string, tables config.TablesConfig) (*EtcDAO, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewEtcDAOWithDB(db, tables), nil
}

// NewEtcDAOWithDB 使用已打开的 gorm.DB（测试里传 sqlite）
func NewEtcDAOWithDB(db *gorm.DB, tables config.TablesConfig) *EtcDAO {
	return &EtcDAO{
		db:     db,
		tables: tables,
		ids:    idgen.NewSnowflakeIDGenerator(2),
		now:    time.Now,
	}
}

// withConn 借一个独占连接执行 fn，失败统一包成 DatabaseError
// fn 拿到的是 NewDB 会话，每条链式查询都从干净的 Statement 开始
func (dao *EtcDAO) withConn(ctx context.Context, op string, fn func(conn *gorm.DB) error) error {
	err := dao.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(conn.Session(&gorm.Session{NewDB: true}))
	})
	if err == nil {
		return nil
	}
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}
	return &DatabaseError{Op: op, Err: err}
}

// UpdateOrderStatus 将申请单置为已激活（order_status='7'）
// 已经是 '7' 的单子 MySQL 默认报 0 行变更，所以先按 order_id 查存在性
func (dao *EtcDAO) UpdateOrderStatus(ctx context.Context, orderID string) error {
	return dao.withConn(ctx, "update_order_status", func(conn *gorm.DB) error {
		var count int64
		if err := conn.Table(dao.tables.Order).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check order: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("order not found: %s", orderID)
		}

		result := conn.Table(dao.tables.Order).
			Where("order_id = ?", orderID).
			Updates(map[string]interface{}{
				"order_status": entity.OrderStatusActivated,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update order: %w", result.Error)
		}
		return nil
	})
}

// UpdateCardUserStatus 将车牌对应的最新办卡用户 status 置为 '1'
func (dao *EtcDAO) UpdateCardUserStatus(ctx context.Context, carNum string) error {
	return dao.withConn(ctx, "update_card_user_status", func(conn *gorm.DB) error {
		user, err := dao.latestCardUser(conn, carNum)
		if err != nil {
			return err
		}

		result := conn.Table(dao.tables.CardUser).
			Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"status": entity.CardUserStatusActive,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update card user: %w", result.Error)
		}
		return nil
	})
}

// UpdateCardUserObuInfo 回写 OBU / ETC 卡号与激活时间
func (dao *EtcDAO) UpdateCardUserObuInfo(ctx context.Context, carNum, obuNo, etcSn, activationTime string) error {
	return dao.withConn(ctx, "update_card_user_obu_info", func(conn *gorm.DB) error {
		user, err := dao.latestCardUser(conn, carNum)
		if err != nil {
			return err
		}

		result := conn.Table(dao.tables.CardUser).
			Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"obu_no":          obuNo,
				"etc_sn":          etcSn,
				"activation_time": activationTime,
				"active_status":   entity.CardUserActiveStatus,
				"status":          entity.CardUserStatusActive,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update card user obu info: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("card user not updated: %s", carNum)
		}
		return nil
	})
}

// StockIn 入库：OBU、ETC 各插入一行
func (dao *EtcDAO) StockIn(ctx context.Context, carNum, obuNo, etcSn, activationTime string) error {
	now := dao.now()
	rows := []entity.DeviceStock{
		dao.stockRow(carNum, obuNo, entity.DeviceTypeOBU, now),
		dao.stockRow(carNum, etcSn, entity.DeviceTypeETC, now),
	}

	return dao.withConn(ctx, "stock_in", func(conn *gorm.DB) error {
		return conn.Transaction(func(tx *gorm.DB) error {
			if err := tx.Table(dao.tables.DeviceStock).Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to insert device stock (activation %s): %w", activationTime, err)
			}
			return nil
		})
	})
}

// ListStock 查询车牌的库存行（按 type 排序）
func (dao *EtcDAO) ListStock(ctx context.Context, carNum string) ([]entity.DeviceStock, error) {
	var rows []entity.DeviceStock
	err := dao.withConn(ctx, "list_stock", func(conn *gorm.DB) error {
		return conn.Table(dao.tables.DeviceStock).
			Where("car_num = ?", carNum).
			Order("type ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (dao *EtcDAO) stockRow(carNum, deviceNo string, deviceType int, now time.Time) entity.DeviceStock {
	return entity.DeviceStock{
		NewstockID:       dao.ids.NextID(),
		CardOperators:    entity.StockCardOperators,
		Status:           entity.StockStatusNormal,
		CarNum:           carNum,
		StockStatus:      entity.StockStockStatusInStk,
		Source:           entity.StockSourceWarehouse,
		Remark:           entity.StockRemark,
		CreateTime:       now,
		DeviceCategory:   entity.StockDeviceCategory,
		InternalDeviceNo: deviceNo,
		ExternalDeviceNo: deviceNo,
		Type:             deviceType,
	}
}

func (dao *EtcDAO) latestCardUser(conn *gorm.DB, carNum string) (*entity.CardUser, error) {
	var user entity.CardUser
	err := conn.Table(dao.tables.CardUser).
		Where("car_num = ?", carNum).
		Order("id DESC").
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("card user not found: %s", carNum)
		}
		return nil, fmt.Errorf("failed to get card user: %w", err)
	}
	return &user, nil
}

// Close 关闭数据库连接
func (dao *EtcDAO) Close() error {
	sqlDB, err := dao.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
