package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"etcapply/internal/params"
)

// 后台接口路径
const (
	PathCheckCarNum                = "/rtx-app/apply/checkCarNum"
	PathCheckIsNotCarNum           = "/rtx-app/apply/order/checkIsNotCarNum"
	PathGetChannelUseAddress       = "/rtx-app/apply/order/getChannelUseAddress"
	PathOptionalServiceList        = "/rtx-app/service/optionalServiceList"
	PathSubmitCarNum               = "/rtx-app/apply/submitCarNum"
	PathProtocolAdd                = "/rtx-app/protocol/add"
	PathSubmitIdentityWithBankSign = "/rtx-app/apply/submitIdentityWithBankSign"
	PathSignCheck                  = "/rtx-app/withhold/signCheck"
	PathSaveVehicleInfo            = "/rtx-app/apply/saveVehicleInfo"
	PathOptionalServiceUpdate      = "/rtx-app/service/optionalServiceUpdate"
	PathWithholdPay                = "/rtx-app/withhold/old/pay"
)

// 签约校验固定的办理位置
const signCheckLocation = "2"

// flexString 兼容后台把 ID 返回成数字或字符串
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// SubmitCarNumResult 提交车牌返回
type SubmitCarNumResult struct {
	OrderID flexString `json:"orderId"`
}

// BankSignResult 身份信息与银行卡签约返回
type BankSignResult struct {
	SignOrderID   string
	VerifyCodeNo  string
	EtccardUserID string // 可能为空
}

// VehicleInfoResult 保存车辆信息返回
type VehicleInfoResult struct {
	EtccardUserID string // 可能为空
}

// SignCheckInput 签约校验：verifyCode 是短信验证码
type SignCheckInput struct {
	SMSCode      string
	VerifyCodeNo string
	SignOrderID  string
}

// WithholdPayInput 代扣：verifyCode 是当天日期 yyMMdd，不是短信验证码
type WithholdPayInput struct {
	EtccardUserID string
	OrderID       string
	DateCode      string
}

// 车辆信息块的字段
var vehicleKeys = []string{
	params.KeyCarNum, "vehicleType", params.KeyVIN, params.KeyEngineNo, "vehicleModel",
	"useCharacter", "registerDate", "issueDate", "approvedCount", "totalMass", "curbWeight",
	"outsideDimensions", "drivingLicenseUrl", "drivingLicenseBackUrl", "carHeadUrl", params.KeyCardHolder,
}

// CheckCarNum 1. 校验车牌
func (c *Client) CheckCarNum(ctx context.Context, req params.Request) error {
	_, err := c.Post(ctx, PathCheckCarNum, map[string]interface{}{
		"carNum":         req.CarNum(),
		"vehicleColor":   req.VehicleColor(),
		"truckchannelId": req["truckchannelId"],
	})
	return err
}

// CheckIsNotCarNum 2. 校验车牌是否已办理
func (c *Client) CheckIsNotCarNum(ctx context.Context, req params.Request) error {
	_, err := c.Post(ctx, PathCheckIsNotCarNum, map[string]interface{}{
		"channelId": req["channelId"],
		"carNum":    req.CarNum(),
	})
	return err
}

// GetChannelUseAddress 3. 渠道可用地址
func (c *Client) GetChannelUseAddress(ctx context.Context, req params.Request) error {
	_, err := c.Post(ctx, PathGetChannelUseAddress, map[string]interface{}{
		"channelId": req["channelId"],
		"province":  req["province"],
		"city":      req["city"],
	})
	return err
}

// OptionalServiceList 4. 可选服务列表
func (c *Client) OptionalServiceList(ctx context.Context, req params.Request) error {
	_, err := c.Post(ctx, PathOptionalServiceList, map[string]interface{}{
		"productId": req[params.KeyProductID],
		"orderId":   "",
		"channelId": req["channelId"],
	})
	return err
}

// SubmitCarNum 5. 提交车牌，返回订单号
func (c *Client) SubmitCarNum(ctx context.Context, req params.Request) (string, error) {
	res, err := c.Post(ctx, PathSubmitCarNum, map[string]interface{}{
		"operatorCode":   req["operatorCode"],
		"truckchannelId": req["truckchannelId"],
		"productId":      req[params.KeyProductID],
		"orderType":      req["orderType"],
		"handleLocation": req["handleLocation"],
		"carNum":         req.CarNum(),
		"vehicleColor":   req.VehicleColor(),
		"terminalId":     "",
		"tempCarNumFlag": req["tempCarNumFlag"],
		"bidOrderType":   req["bidOrderType"],
	})
	if err != nil {
		return "", err
	}

	var data SubmitCarNumResult
	if err := decodeData(PathSubmitCarNum, res, &data); err != nil {
		return "", err
	}
	if data.OrderID == "" {
		return "", &DecodeError{Path: PathSubmitCarNum, Raw: res.Raw, Err: errors.New("missing data.orderId")}
	}
	return string(data.OrderID), nil
}

// ProtocolAdd 6. 签署协议
func (c *Client) ProtocolAdd(ctx context.Context, req params.Request, orderID string) error {
	_, err := c.Post(ctx, PathProtocolAdd, map[string]interface{}{
		"orderId":      orderID,
		"protocolId":   req["protocolId"],
		"signingImage": req["signingImage"],
		"protocolType": req["protocolType"],
	})
	return err
}

// SubmitIdentityWithBankSign 7. 提交身份信息并发起银行卡签约（触发短信）
func (c *Client) SubmitIdentityWithBankSign(ctx context.Context, req params.Request, orderID string) (*BankSignResult, error) {
	res, err := c.Post(ctx, PathSubmitIdentityWithBankSign, map[string]interface{}{
		"productId":       req[params.KeyProductID],
		"idCardUrl":       req["idCardUrl"],
		"backIdCardUrl":   req["backIdCardUrl"],
		"cardHolder":      req[params.KeyCardHolder],
		"idCode":          req[params.KeyIDCode],
		"idcardValidity":  req["idcardValidity"],
		"idAddress":       req["idAddress"],
		"urgentContact":   req[params.KeyUrgentContact],
		"urgentPhone":     req[params.KeyUrgentPhone],
		"bindBankUrl":     req["bindBankUrl"],
		"bindBankName":    req["bindBankName"],
		"bindBankNo":      req[params.KeyBindBankNo],
		"bankCode":        req["bankCode"],
		"bindBankPhone":   req[params.KeyBindBankPhone],
		"bankCardType":    req["bankCardType"],
		"bankChannelCode": req["bankChannelCode"],
		"code":            "",
		"bankCardInfoId":  req["bankCardInfoId"],
		"isAgree":         req["isAgree"],
		"orderId":         orderID,
	})
	if err != nil {
		return nil, err
	}

	var data struct {
		SignOrderID   flexString `json:"signOrderId"`
		VerifyCodeNo  flexString `json:"verifyCodeNo"`
		EtccardUserID flexString `json:"etccardUserId"`
	}
	if err := decodeData(PathSubmitIdentityWithBankSign, res, &data); err != nil {
		return nil, err
	}
	if data.SignOrderID == "" || data.VerifyCodeNo == "" {
		return nil, &DecodeError{Path: PathSubmitIdentityWithBankSign, Raw: res.Raw, Err: errors.New("missing data.signOrderId or data.verifyCodeNo")}
	}
	return &BankSignResult{
		SignOrderID:   string(data.SignOrderID),
		VerifyCodeNo:  string(data.VerifyCodeNo),
		EtccardUserID: string(data.EtccardUserID),
	}, nil
}

// SignCheck 8. 用短信验证码完成签约
func (c *Client) SignCheck(ctx context.Context, req params.Request, in SignCheckInput) error {
	_, err := c.Post(ctx, PathSignCheck, map[string]interface{}{
		"productId":     req[params.KeyProductID],
		"verifyCode":    in.SMSCode,
		"bankCardNo":    req[params.KeyBindBankNo],
		"bindBankPhone": req[params.KeyBindBankPhone],
		"idCode":        req[params.KeyIDCode],
		"verifyCodeNo":  in.VerifyCodeNo,
		"signOrderId":   in.SignOrderID,
		"location":      signCheckLocation,
	})
	return err
}

// SaveVehicleInfo 9. 保存车辆信息
func (c *Client) SaveVehicleInfo(ctx context.Context, req params.Request, orderID string) (*VehicleInfoResult, error) {
	body := make(map[string]interface{}, len(vehicleKeys)+3)
	for _, k := range vehicleKeys {
		body[k] = req[k]
	}
	body["vehicleColor"] = req.VehicleColor()
	body["productId"] = req[params.KeyProductID]
	body["orderId"] = orderID

	res, err := c.Post(ctx, PathSaveVehicleInfo, body)
	if err != nil {
		return nil, err
	}

	var data struct {
		EtccardUserID flexString `json:"etccardUserId"`
	}
	if err := decodeData(PathSaveVehicleInfo, res, &data); err != nil {
		return nil, err
	}
	return &VehicleInfoResult{EtccardUserID: string(data.EtccardUserID)}, nil
}

// OptionalServiceUpdate 10. 更新可选服务
func (c *Client) OptionalServiceUpdate(ctx context.Context, orderID string) error {
	_, err := c.Post(ctx, PathOptionalServiceUpdate, map[string]interface{}{
		"orderId": orderID,
	})
	return err
}

// WithholdPay 11. 代扣
func (c *Client) WithholdPay(ctx context.Context, req params.Request, in WithholdPayInput) error {
	_, err := c.Post(ctx, PathWithholdPay, map[string]interface{}{
		"bankCardNo":    req[params.KeyBindBankNo],
		"etcCardUserId": in.EtccardUserID,
		"productId":     req[params.KeyProductID],
		"applyOrderId":  in.OrderID,
		"verifyCode":    in.DateCode,
		"phoneNumber":   req[params.KeyBindBankPhone],
	})
	return err
}
