package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// CheckoutConfig holds the payment gateway merchant credentials.
	CheckoutConfig struct {
		KeyID     string
		KeySecret string
		Currency  string
	}

	FeesConfig struct {
		ReceiptPrefix string
		Timezone      string
	}

	Config struct {
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail mail.Address

		Server   ServerConfig
		Database DatabaseConfig
		Checkout CheckoutConfig
		Fees     FeesConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// Location returns the timezone fee due dates are evaluated in.
func (fc FeesConfig) Location() *time.Location {
	if fc.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(fc.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewConfig reads the configuration from the environment (ENV prefixed) and optional .env.<env> files.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Fees")
	v.SetDefault("secretKey", "tn1k-8*r3kq)0!bw8a$4m=k9o%p)u6x2@c#h^xsl7z0r_fee5")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("defaultFromEmail", "Fees <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridAPIKey", "")

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 8*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "fees")
	v.SetDefault("dbUser", "fees")
	v.SetDefault("dbPassword", "fees")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("checkoutKeyID", "rzp_test_local")
	v.SetDefault("checkoutKeySecret", "checkout-test-secret")
	v.SetDefault("checkoutCurrency", "INR")

	v.SetDefault("feesReceiptPrefix", "RCPT")
	v.SetDefault("feesTimezone", "Asia/Kolkata")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	workDir, _ := os.Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatal(fmt.Errorf("config.defaultFromEmail: %v", err))
	}

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          workDir,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridAPIKey"),
		DefaultFromEmail: *from,
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Checkout: CheckoutConfig{
			KeyID:     v.GetString("checkoutKeyID"),
			KeySecret: v.GetString("checkoutKeySecret"),
			Currency:  v.GetString("checkoutCurrency"),
		},
		Fees: FeesConfig{
			ReceiptPrefix: v.GetString("feesReceiptPrefix"),
			Timezone:      v.GetString("feesTimezone"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no env files, no external services.
func NewTestConfig() *Config {
	return &Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "Fees",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:8080",
		DefaultFromEmail: mail.Address{Name: "Fees", Address: "noreply@localhost"},
		Server: ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Checkout: CheckoutConfig{
			KeyID:     "rzp_test_local",
			KeySecret: "checkout-test-secret",
			Currency:  "INR",
		},
		Fees: FeesConfig{ReceiptPrefix: "RCPT"},
	}
}
