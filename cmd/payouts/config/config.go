package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go-payouts/internal/payouts"
	"go-payouts/internal/payouts/batchmonitor"
	"go-payouts/internal/payouts/cutoff"
	"go-payouts/internal/payouts/data"
	"go-payouts/internal/payouts/data/database"
	"go-payouts/internal/payouts/paymentrail"
	"go-payouts/internal/payouts/service"
	"go.uber.org/zap/zapcore"
)

const (
	serverAddressFlag         = "a"
	serverAddressEnv          = "RUN_ADDRESS"
	serverAddressDefault      = "localhost:8080"
	paymentRailAddressFlag    = "r"
	paymentRailAddressEnv     = "PAYMENT_RAIL_ADDRESS"
	paymentRailAddressDefault = "localhost:8081"
	dbConnectionStringFlag    = "d"
	dbConnectionStringEnv     = "DATABASE_URI"
	dbConnectionStringDefault = ""
	natsURLFlag               = "n"
	natsURLEnv                = "NATS_URL"
	natsURLDefault            = ""
	jwtSecretFlag             = "jwt-secret"
	jwtSecretEnv              = "JWT_SECRET"
	jwtSecretDefault          = "secret"
	logLevelFlag              = "log-level"
	logLevelEnv               = "LOG_LEVEL"
	logLevelDefault           = "info"
	cutoffWeekdayFlag         = "cutoff-weekday"
	cutoffWeekdayEnv          = "CUTOFF_WEEKDAY"
	cutoffHourFlag            = "cutoff-hour"
	cutoffHourEnv             = "CUTOFF_HOUR"
	warningLeadFlag           = "warning-lead"
	warningLeadEnv            = "WARNING_LEAD"
	monitorTickFlag           = "monitor-tick"
	monitorTickEnv            = "MONITOR_TICK"
	monitorTickDefault        = time.Minute
	autoLockFlag              = "auto-lock"
	autoLockEnv               = "AUTO_LOCK"
	payPalFeePercentFlag      = "paypal-fee-percent"
	payPalFeePercentEnv       = "PAYPAL_FEE_PERCENT"
	payPalFeePercentDefault   = "2"
	paystackFeePercentFlag    = "paystack-fee-percent"
	paystackFeePercentEnv     = "PAYSTACK_FEE_PERCENT"
	paystackFeePercentDefault = "1.5"
	exchangeRatesFlag         = "exchange-rates"
	exchangeRatesEnv          = "EXCHANGE_RATES"
	exchangeRatesDefault      = ""
	shutdownTimeoutFlag       = "shutdown-timeout"
	shutdownTimeoutEnv        = "SHUTDOWN_TIMEOUT"
	shutdownTimeoutDefault    = 5 * time.Second
	paymentRailTimeoutDefault = 30 * time.Second
	jwtAlgorithm              = "HS256"
	jwtExpirationTime         = time.Hour
	dbMaxConnsDefault         = 10
)

var dbRetryAttemptDelays = []time.Duration{time.Second, 3 * time.Second, 5 * time.Second}

type Config struct {
	Server          payouts.Config
	JWTConfig       JWTConfig
	DB              database.Config
	PaymentRail     paymentrail.Config
	Monitor         batchmonitor.Config
	Schedule        cutoff.Schedule
	Fees            service.FeeSchedule
	NATSURL         string
	ExchangeRates   string
	LogLevel        zapcore.Level
	ShutdownTimeout time.Duration
}

type JWTConfig struct {
	Algorithm      string
	Secret         string
	ExpirationTime time.Duration
}

// Load reads flags, then lets the environment (including a .env file in the
// working directory, if any) override them.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(flag.CommandLine, os.Args[1:], os.LookupEnv)
}

func load(fs *flag.FlagSet, args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	serverAddress := fs.String(serverAddressFlag, serverAddressDefault, "Server address host:port")
	paymentRailAddress := fs.String(paymentRailAddressFlag, paymentRailAddressDefault, "Payment rail address host:port")
	dbConnectionString := fs.String(dbConnectionStringFlag, dbConnectionStringDefault, "PostgreSQL connection string")
	natsURL := fs.String(natsURLFlag, natsURLDefault, "NATS server URL, events are not published when empty")
	jwtSecret := fs.String(jwtSecretFlag, jwtSecretDefault, "HS256 secret for bearer tokens")
	logLevel := fs.String(logLevelFlag, logLevelDefault, "Log level")
	cutoffWeekday := fs.String(cutoffWeekdayFlag, cutoff.Default.Weekday.String(), "Weekday of the weekly cutoff (UTC)")
	cutoffHour := fs.Int(cutoffHourFlag, cutoff.Default.Hour, "Hour of the weekly cutoff (UTC)")
	warningLead := fs.Duration(warningLeadFlag, cutoff.Default.WarningLead, "How long before the cutoff the deadline notice opens")
	monitorTick := fs.Duration(monitorTickFlag, monitorTickDefault, "Batch monitor tick period")
	autoLock := fs.Bool(autoLockFlag, false, "Lock the collecting batch automatically once its cutoff passes")
	payPalFeePercent := fs.String(payPalFeePercentFlag, payPalFeePercentDefault, "PayPal fee, percent of the amount")
	paystackFeePercent := fs.String(paystackFeePercentFlag, paystackFeePercentDefault, "Paystack fee, percent of the amount")
	exchangeRates := fs.String(exchangeRatesFlag, exchangeRatesDefault, "Local currency rates per USD, e.g. NGN=1550.5,GHS=15.2")
	shutdownTimeout := fs.Duration(shutdownTimeoutFlag, shutdownTimeoutDefault, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags failed: %w", err)
	}

	overrideString(lookupEnv, serverAddressEnv, serverAddress)
	overrideString(lookupEnv, paymentRailAddressEnv, paymentRailAddress)
	overrideString(lookupEnv, dbConnectionStringEnv, dbConnectionString)
	overrideString(lookupEnv, natsURLEnv, natsURL)
	overrideString(lookupEnv, jwtSecretEnv, jwtSecret)
	overrideString(lookupEnv, logLevelEnv, logLevel)
	overrideString(lookupEnv, cutoffWeekdayEnv, cutoffWeekday)
	overrideString(lookupEnv, payPalFeePercentEnv, payPalFeePercent)
	overrideString(lookupEnv, paystackFeePercentEnv, paystackFeePercent)
	overrideString(lookupEnv, exchangeRatesEnv, exchangeRates)

	var errs []error
	errs = append(errs, overrideInt(lookupEnv, cutoffHourEnv, cutoffHour))
	errs = append(errs, overrideDuration(lookupEnv, warningLeadEnv, warningLead))
	errs = append(errs, overrideDuration(lookupEnv, monitorTickEnv, monitorTick))
	errs = append(errs, overrideDuration(lookupEnv, shutdownTimeoutEnv, shutdownTimeout))
	errs = append(errs, overrideBool(lookupEnv, autoLockEnv, autoLock))
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	level, err := zapcore.ParseLevel(*logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	weekday, err := parseWeekday(*cutoffWeekday)
	if err != nil {
		return nil, err
	}
	schedule := cutoff.Schedule{
		Weekday:     weekday,
		Hour:        *cutoffHour,
		WarningLead: *warningLead,
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if *monitorTick <= 0 {
		return nil, fmt.Errorf("invalid monitor tick %s", *monitorTick)
	}
	fees, err := parseFees(*payPalFeePercent, *paystackFeePercent)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: payouts.Config{
			ServerAddress:   *serverAddress,
			ShutdownTimeout: *shutdownTimeout,
		},
		JWTConfig: JWTConfig{
			Algorithm:      jwtAlgorithm,
			Secret:         *jwtSecret,
			ExpirationTime: jwtExpirationTime,
		},
		DB: database.Config{
			ConnectionString:   *dbConnectionString,
			RetryAttemptDelays: dbRetryAttemptDelays,
			MaxConns:           dbMaxConnsDefault,
		},
		PaymentRail: paymentrail.Config{
			ServerAddress: *paymentRailAddress,
			Timeout:       paymentRailTimeoutDefault,
		},
		Monitor: batchmonitor.Config{
			TickPeriod: *monitorTick,
			AutoLock:   *autoLock,
		},
		Schedule:        schedule,
		Fees:            fees,
		NATSURL:         *natsURL,
		ExchangeRates:   *exchangeRates,
		LogLevel:        level,
		ShutdownTimeout: *shutdownTimeout,
	}, nil
}

func overrideString(lookupEnv func(string) (string, bool), env string, dst *string) {
	if valStr, ok := lookupEnv(env); ok {
		*dst = valStr
	}
}

func overrideInt(lookupEnv func(string) (string, bool), env string, dst *int) error {
	valStr, ok := lookupEnv(env)
	if !ok {
		return nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = val
	return nil
}

func overrideDuration(lookupEnv func(string) (string, bool), env string, dst *time.Duration) error {
	valStr, ok := lookupEnv(env)
	if !ok {
		return nil
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = val
	return nil
}

func overrideBool(lookupEnv func(string) (string, bool), env string, dst *bool) error {
	valStr, ok := lookupEnv(env)
	if !ok {
		return nil
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = val
	return nil
}

func parseWeekday(value string) (time.Weekday, error) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.EqualFold(day.String(), value) || strings.EqualFold(day.String()[:3], value) {
			return day, nil
		}
	}
	return 0, fmt.Errorf("invalid cutoff weekday %q", value)
}

func parseFees(payPal, paystack string) (service.FeeSchedule, error) {
	fees := service.FeeSchedule{}
	for method, value := range map[data.PaymentMethod]string{data.PayPal: payPal, data.Paystack: paystack} {
		percent, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s fee percent: %w", method, err)
		}
		if percent.IsNegative() || percent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("invalid %s fee percent %s", method, percent)
		}
		fees[method] = percent
	}
	return fees, nil
}
