package relayer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/zephyrpay/relayer/core/transferengine"
	"github.com/zephyrpay/relayer/model"
	"github.com/zephyrpay/relayer/version"
)

type HttpJsonResp[T any] struct {
	Data T `json:"data"`
}

type HttpErrorResp struct {
	Error string `json:"error"`
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// TransferPayload is the POST /transfers body.
type TransferPayload struct {
	UserID    string `json:"user_id" validate:"required"`
	Owner     string `json:"owner" validate:"required,eth_addr"`
	Recipient string `json:"recipient" validate:"required,eth_addr"`
	Amount    string `json:"amount" validate:"required"`
	Currency  string `json:"currency" validate:"required"`
}

func (r *Relayer) startHttpServer(ctx context.Context) {
	if r.config.HttpBindAddress == "" {
		r.logger.Info("HTTP server disabled: no http_bind_address configured")
		return
	}

	e := r.newRouter()
	addr := r.config.HttpBindAddress

	r.logger.Info("HTTP server listening", "address", addr)
	goSafe(func() {
		if err := e.Start(addr); err != nil {
			r.logger.Warn("HTTP server failed to start; continuing without HTTP endpoint", "address", addr, "error", err)
		}
	})

	goSafe(func() {
		<-ctx.Done()
		_ = e.Close()
	})
}

func (r *Relayer) newRouter() *echo.Echo {
	sentryDsn := r.config.SentryDsn
	if sentryDsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDsn,
			Release:          fmt.Sprintf("relayer@%s", version.Get()),
			AttachStacktrace: true,
		}); err != nil {
			r.logger.Errorf("Sentry initialization failed: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New()}

	e.Use(middleware.Logger())

	// register Sentry before Recover so panics are reported
	if sentryDsn != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic:         true,
			WaitForDelivery: false,
		}))
	}

	e.Use(middleware.Recover())

	e.GET("/up", func(c echo.Context) error {
		if r.status == runningStatus {
			return c.String(http.StatusOK, "up")
		}
		return c.String(http.StatusServiceUnavailable, "pending...")
	})

	e.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, &HttpJsonResp[string]{Data: version.Get()})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))

	e.POST("/transfers", r.handleTransfer)
	e.GET("/wallets/:owner", r.handleGetWallet)
	e.GET("/transactions/:user_id", r.handleListTransactions)
	e.GET("/transactions/:user_id/:id", r.handleGetTransaction)

	return e
}

func (r *Relayer) handleTransfer(c echo.Context) error {
	payload := &TransferPayload{}
	if err := c.Bind(payload); err != nil {
		return c.JSON(http.StatusBadRequest, &HttpErrorResp{Error: "invalid request body"})
	}
	if err := c.Validate(payload); err != nil {
		return c.JSON(http.StatusBadRequest, &HttpErrorResp{Error: err.Error()})
	}

	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &HttpErrorResp{Error: "invalid amount"})
	}

	user := &model.User{
		ID:      payload.UserID,
		Address: common.HexToAddress(payload.Owner),
	}

	record, err := r.engine.Transfer(c.Request().Context(), user, &transferengine.TransferRequest{
		Recipient: common.HexToAddress(payload.Recipient),
		Amount:    amount,
		Currency:  payload.Currency,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, transferengine.ErrCurrencyNotSupported),
			errors.Is(err, transferengine.ErrAmountPrecision),
			errors.Is(err, transferengine.ErrAmountNotPositive):
			status = http.StatusBadRequest
		}

		// a failed submission still produced a record worth returning
		if record != nil {
			return c.JSON(status, struct {
				Data  *model.TransactionRecord `json:"data"`
				Error string                   `json:"error"`
			}{Data: record, Error: err.Error()})
		}
		return c.JSON(status, &HttpErrorResp{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, &HttpJsonResp[*model.TransactionRecord]{Data: record})
}

func (r *Relayer) handleGetWallet(c echo.Context) error {
	owner := c.Param("owner")
	if !common.IsHexAddress(owner) {
		return c.JSON(http.StatusBadRequest, &HttpErrorResp{Error: "invalid owner address"})
	}

	wallet, err := r.engine.GetWallet(&model.User{Address: common.HexToAddress(owner)})
	if err != nil {
		if errors.Is(err, transferengine.ErrWalletNotFound) {
			return c.JSON(http.StatusNotFound, &HttpErrorResp{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, &HttpErrorResp{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, &HttpJsonResp[*model.SmartWallet]{Data: wallet})
}

func (r *Relayer) handleListTransactions(c echo.Context) error {
	records, err := r.engine.ListTransactions(c.Param("user_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, &HttpErrorResp{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, &HttpJsonResp[[]*model.TransactionRecord]{Data: records})
}

func (r *Relayer) handleGetTransaction(c echo.Context) error {
	record, err := r.engine.GetTransaction(c.Param("user_id"), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, &HttpErrorResp{Error: "transaction not found"})
	}

	return c.JSON(http.StatusOK, &HttpJsonResp[*model.TransactionRecord]{Data: record})
}
