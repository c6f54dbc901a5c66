package main

import (
	"net/http"
	"net/url"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"push-dispatch-backend/config"
	"push-dispatch-backend/internal/credential"
	"push-dispatch-backend/internal/db"
	"push-dispatch-backend/internal/notification"
	"push-dispatch-backend/internal/store"
)

// app is the process-wide state, built once per command.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	registry store.Registry
	engine   *notification.Engine
	webpush  *webpush.Options
}

func newApp(cfg *config.Config) (*app, error) {
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, err
	}
	registry := store.NewGormStore(gormDB)

	client := gatewayClient(cfg.Gateway)
	issuer, err := credential.NewIssuer(credential.Config{
		ClientEmail: cfg.Gateway.ClientEmail,
		PrivateKey:  cfg.Gateway.PrivateKey,
		TokenURL:    cfg.Gateway.TokenURL,
		Scope:       cfg.Gateway.Scope,
	}, client)
	if err != nil {
		return nil, err
	}
	tokens := credential.NewCachedSource(issuer, credential.DefaultSkew)
	fcm := notification.NewFCMClient(cfg.Gateway.BaseURL, cfg.Gateway.ProjectID, client)

	var webpushOptions *webpush.Options
	var webPush notification.Transport
	if cfg.WebPushEnabled() {
		webpushOptions = &webpush.Options{
			HTTPClient:      client,
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		webPush = notification.NewWebPushTransport(webpushOptions)
	} else {
		logrus.Info("VAPID keys not configured; web push endpoints will not be delivered")
	}

	engine := notification.NewEngine(registry, tokens, fcm, webPush, notification.EngineConfig{
		Timeout:        cfg.Dispatch.Timeout,
		MaxConcurrency: cfg.Dispatch.MaxConcurrency,
	})

	return &app{
		cfg:      cfg,
		db:       gormDB,
		registry: registry,
		engine:   engine,
		webpush:  webpushOptions,
	}, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// gatewayClient is shared by the token exchange and both transports.
func gatewayClient(cfg config.GatewayConfig) *http.Client {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logrus.WithError(err).Warnf("invalid proxy URL %q; gateway requests will not use a proxy", cfg.HTTPProxy)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.RequestTimeoutSec) * time.Second,
	}
}
