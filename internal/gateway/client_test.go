package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"etcapply/internal/params"
	"etcapply/pkg/errorutil"
)

type captured struct {
	Path    string
	Headers http.Header
	Cookies map[string]string
	Body    map[string]interface{}
}

type stubServer struct {
	mu       sync.Mutex
	requests []captured
	replies  map[string]string // path -> response body
	status   int
}

func newStub(t *testing.T, replies map[string]string) (*stubServer, *Client) {
	t.Helper()

	stub := &stubServer{replies: replies, status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)

		cookies := make(map[string]string)
		for _, c := range r.Cookies() {
			cookies[c.Name] = c.Value
		}

		stub.mu.Lock()
		stub.requests = append(stub.requests, captured{Path: r.URL.Path, Headers: r.Header.Clone(), Cookies: cookies, Body: body})
		status := stub.status
		reply, ok := stub.replies[r.URL.Path]
		stub.mu.Unlock()

		if !ok {
			reply = `{"code":200,"msg":"ok"}`
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)

	client, err := New(Options{
		BaseURL: srv.URL + "/",
		Cookies: map[string]string{"Admin-Token": "tok", "JSESSIONID": "sess", "SERVERID": "srv"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return stub, client
}

func (s *stubServer) last(t *testing.T) captured {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatalf("no request captured")
	}
	return s.requests[len(s.requests)-1]
}

func TestPost_HeadersAndCookies(t *testing.T) {
	t.Parallel()
	stub, client := newStub(t, nil)

	res, err := client.Post(context.Background(), "/rtx-app/ping", map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if res.Code != 200 || res.Msg != "ok" {
		t.Fatalf("result want=200/ok got=%d/%s", res.Code, res.Msg)
	}

	got := stub.last(t)
	if got.Path != "/rtx-app/ping" {
		t.Fatalf("path want=/rtx-app/ping got=%s", got.Path)
	}
	for header, want := range map[string]string{
		"Content-Type":     "application/json",
		"X-Requested-With": "XMLHttpRequest",
		"Accept":           acceptHeader,
		"User-Agent":       userAgent,
	} {
		if v := got.Headers.Get(header); v != want {
			t.Fatalf("header %s want=%q got=%q", header, want, v)
		}
	}
	wantCookies := map[string]string{"Admin-Token": "tok", "JSESSIONID": "sess", "SERVERID": "srv"}
	if diff := cmp.Diff(wantCookies, got.Cookies); diff != "" {
		t.Fatalf("cookies mismatch (-want +got):\n%s", diff)
	}
	if got.Body["a"] != "b" {
		t.Fatalf("body not forwarded: %v", got.Body)
	}
}

func TestPost_BusinessError(t *testing.T) {
	t.Parallel()
	_, client := newStub(t, map[string]string{
		PathSubmitCarNum: `{"code": 500, "msg": "plate in use"}`,
		"/message":       `{"code": 4001, "message": "token expired"}`,
	})

	_, err := client.Post(context.Background(), PathSubmitCarNum, nil)
	var bizErr *BusinessError
	if !errors.As(err, &bizErr) {
		t.Fatalf("want BusinessError got=%v", err)
	}
	if bizErr.Code != 500 || bizErr.Message != "plate in use" || bizErr.Path != PathSubmitCarNum {
		t.Fatalf("unexpected business error: %+v", bizErr)
	}
	if !strings.Contains(err.Error(), "plate in use") {
		t.Fatalf("message should carry msg: %v", err)
	}
	if kind := errorutil.KindOf(err); kind != errorutil.KindBusiness {
		t.Fatalf("kind want=%s got=%s", errorutil.KindBusiness, kind)
	}

	_, err = client.Post(context.Background(), "/message", nil)
	if !errors.As(err, &bizErr) || bizErr.Message != "token expired" {
		t.Fatalf("want message fallback got=%v", err)
	}
}

func TestPost_DecodeError(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"/html":      `<html>login</html>`,
		"/array":     `[1,2,3]`,
		"/no-code":   `{"msg":"ok"}`,
		"/text-code": `{"code":"200"}`,
		"/frac-code": `{"code":200.5}`,
		"/huge-code": `{"code":1e30}`,
		"/empty":     ``,
	}
	_, client := newStub(t, bodies)

	for path := range bodies {
		_, err := client.Post(context.Background(), path, nil)
		var decErr *DecodeError
		if !errors.As(err, &decErr) {
			t.Fatalf("%s: want DecodeError got=%v", path, err)
		}
		if kind := errorutil.KindOf(err); kind != errorutil.KindDecode {
			t.Fatalf("%s: kind want=%s got=%s", path, errorutil.KindDecode, kind)
		}
	}
}

func TestPost_IntegralFloatCodeIsSuccess(t *testing.T) {
	t.Parallel()
	_, client := newStub(t, map[string]string{"/float": `{"code":200.0,"data":{}}`})

	res, err := client.Post(context.Background(), "/float", nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if res.Code != 200 {
		t.Fatalf("code want=200 got=%d", res.Code)
	}
}

func TestPost_TransportError(t *testing.T) {
	t.Parallel()
	stub, client := newStub(t, map[string]string{"/down": "bad gateway"})
	stub.mu.Lock()
	stub.status = http.StatusBadGateway
	stub.mu.Unlock()

	_, err := client.Post(context.Background(), "/down", map[string]int{"x": 1})
	var trErr *TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("want TransportError got=%v", err)
	}
	if trErr.Status != http.StatusBadGateway || trErr.Text != "bad gateway" || string(trErr.Body) != `{"x":1}` {
		t.Fatalf("unexpected transport error: %+v", trErr)
	}

	// 连接失败
	dead, err := New(Options{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = dead.Post(context.Background(), "/x", nil)
	if !errorutil.Is(err, errorutil.KindTransport) {
		t.Fatalf("want TransportError got=%v", err)
	}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{BaseURL: "not a url"}); err == nil {
		t.Fatalf("expected error for invalid base url")
	}
}

func testRequest() params.Request {
	return params.Request{
		params.KeyCarNum:        "苏A12345",
		params.KeyVehicleColor:  "2",
		params.KeyCardHolder:    "张三",
		params.KeyIDCode:        "11010119900307123X",
		params.KeyBindBankNo:    "6222021234567890123",
		params.KeyBindBankPhone: "13812345678",
		params.KeyProductID:     "P1",
		"truckchannelId":        "1001",
		"channelId":             "2002",
	}
}

func TestSubmitCarNum(t *testing.T) {
	t.Parallel()
	stub, client := newStub(t, map[string]string{
		PathSubmitCarNum: `{"code":200,"data":{"orderId":"ORD-1"}}`,
	})

	orderID, err := client.SubmitCarNum(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("SubmitCarNum: %v", err)
	}
	if orderID != "ORD-1" {
		t.Fatalf("orderId want=ORD-1 got=%s", orderID)
	}

	body := stub.last(t).Body
	if body["carNum"] != "苏A12345" || body["vehicleColor"] != float64(2) || body["terminalId"] != "" || body["productId"] != "P1" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSubmitCarNum_NumericAndMissingOrderID(t *testing.T) {
	t.Parallel()
	stub, client := newStub(t, map[string]string{
		PathSubmitCarNum: `{"code":200,"data":{"orderId":1234567890123}}`,
	})

	orderID, err := client.SubmitCarNum(context.Background(), testRequest())
	if err != nil || orderID != "1234567890123" {
		t.Fatalf("numeric orderId want=1234567890123 got=%s err=%v", orderID, err)
	}

	stub.mu.Lock()
	stub.replies[PathSubmitCarNum] = `{"code":200,"data":{}}`
	stub.mu.Unlock()
	if _, err := client.SubmitCarNum(context.Background(), testRequest()); !errorutil.Is(err, errorutil.KindDecode) {
		t.Fatalf("missing orderId want DecodeError got=%v", err)
	}
}

func TestSubmitIdentityWithBankSign(t *testing.T) {
	t.Parallel()
	stub, client := newStub(t, map[string]string{
		PathSubmitIdentityWithBankSign: `{"code":200,"data":{"signOrderId":"SGN-1","verifyCodeNo":"VCN-1","etccardUserId":"ECU-1"}}`,
	})

	got, err := client.SubmitIdentityWithBankSign(context.Background(), testRequest(), "ORD-1")
	if err != nil {
		t.Fatalf("SubmitIdentityWithBankSign: %v", err)
	}
	want := &BankSignResult{SignOrderID: "SGN-1", VerifyCodeNo: "VCN-1", EtccardUserID: "ECU-1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	body := stub.last(t).Body
	if body["code"] != "" || body["orderId"] != "ORD-1" || body["cardHolder"] != "张三" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestSignCheckAndWithholdPay_VerifyCodes(t *testing.T) {
	t.Parallel()
	stub, client := newStub(t, nil)
	ctx := context.Background()

	err := client.SignCheck(ctx, testRequest(), SignCheckInput{SMSCode: "123456", VerifyCodeNo: "VCN-1", SignOrderID: "SGN-1"})
	if err != nil {
		t.Fatalf("SignCheck: %v", err)
	}
	body := stub.last(t).Body
	want := map[string]interface{}{
		"productId":     "P1",
		"verifyCode":    "123456",
		"bankCardNo":    "6222021234567890123",
		"bindBankPhone": "13812345678",
		"idCode":        "11010119900307123X",
		"verifyCodeNo":  "VCN-1",
		"signOrderId":   "SGN-1",
		"location":      "2",
	}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Fatalf("signCheck body mismatch (-want +got):\n%s", diff)
	}

	err = client.WithholdPay(ctx, testRequest(), WithholdPayInput{EtccardUserID: "ECU-1", OrderID: "ORD-1", DateCode: "240506"})
	if err != nil {
		t.Fatalf("WithholdPay: %v", err)
	}
	got := stub.last(t)
	if got.Path != PathWithholdPay {
		t.Fatalf("path want=%s got=%s", PathWithholdPay, got.Path)
	}
	want = map[string]interface{}{
		"bankCardNo":    "6222021234567890123",
		"etcCardUserId": "ECU-1",
		"productId":     "P1",
		"applyOrderId":  "ORD-1",
		"verifyCode":    "240506",
		"phoneNumber":   "13812345678",
	}
	if diff := cmp.Diff(want, got.Body); diff != "" {
		t.Fatalf("pay body mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveVehicleInfo(t *testing.T) {
	t.Parallel()
	stub, client := newStub(t, map[string]string{
		PathSaveVehicleInfo: `{"code":200,"data":{"etccardUserId":98765}}`,
	})

	res, err := client.SaveVehicleInfo(context.Background(), testRequest(), "ORD-1")
	if err != nil {
		t.Fatalf("SaveVehicleInfo: %v", err)
	}
	if res.EtccardUserID != "98765" {
		t.Fatalf("etccardUserId want=98765 got=%s", res.EtccardUserID)
	}
	body := stub.last(t).Body
	if body["orderId"] != "ORD-1" || body["productId"] != "P1" || body["carNum"] != "苏A12345" {
		t.Fatalf("unexpected body: %v", body)
	}

	stub.mu.Lock()
	stub.replies[PathSaveVehicleInfo] = `{"code":200,"data":null}`
	stub.mu.Unlock()
	res, err = client.SaveVehicleInfo(context.Background(), testRequest(), "ORD-1")
	if err != nil || res.EtccardUserID != "" {
		t.Fatalf("null data want empty result got=%+v err=%v", res, err)
	}
}
