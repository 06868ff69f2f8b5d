// paywatchd watches the treasury address for payment of ad-hoc requests.
// It is the operational wrapper around the paywatch engine: configuration
// via file/environment, zap logging, and Prometheus metrics.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/paywatch/paywatch"
	"github.com/paywatch/paywatch/gateway/solanarpc"
	"github.com/paywatch/paywatch/observer"
)

type config struct {
	RPCEndpoint     string        `mapstructure:"rpc_endpoint"`
	TreasuryAddress string        `mapstructure:"treasury_address"`
	PaymentTimeout  time.Duration `mapstructure:"payment_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MatchTolerance  uint64        `mapstructure:"match_tolerance"`
	SignatureWindow int           `mapstructure:"signature_window"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	SweepRetention  time.Duration `mapstructure:"sweep_retention"`
}

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "paywatchd",
	Short: "Treasury payment watcher",
	Long:  `Watches a shared treasury address on Solana and reconciles incoming transfers against issued payment requests.`,
}

var watchCmd = &cobra.Command{
	Use:   "watch <payer-ref> <amount-lamports>",
	Short: "Issue a payment request and watch it to a terminal state",
	Args:  cobra.ExactArgs(2),
	RunE:  runWatch,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file directory (default: working directory)")
	rootCmd.AddCommand(watchCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config, error) {
	v := viper.New()
	v.SetConfigName("paywatchd")
	v.SetConfigType("yaml")
	if cfgPath != "" {
		v.AddConfigPath(cfgPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/paywatchd")
	v.SetEnvPrefix("PAYWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc_endpoint", "https://api.mainnet-beta.solana.com")
	v.SetDefault("payment_timeout", paywatch.DefaultPaymentTimeout)
	v.SetDefault("poll_interval", paywatch.DefaultPollInterval)
	v.SetDefault("match_tolerance", paywatch.DefaultMatchTolerance)
	v.SetDefault("signature_window", paywatch.DefaultSignatureWindow)
	v.SetDefault("sweep_retention", 24*time.Hour)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; environment alone is enough.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.TreasuryAddress == "" {
		return nil, fmt.Errorf("treasury_address is required (set PAYWATCH_TREASURY_ADDRESS or the config file)")
	}
	return &cfg, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("amount must be a positive integer in lamports: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	metrics := observer.NewMetrics(prometheus.DefaultRegisterer)
	opts := append(observer.Zap(logger), metrics.Options()...)

	engine, err := paywatch.New(solanarpc.New(cfg.RPCEndpoint), paywatch.Config{
		TreasuryAddress: cfg.TreasuryAddress,
		PaymentTimeout:  cfg.PaymentTimeout,
		PollInterval:    cfg.PollInterval,
		MatchTolerance:  cfg.MatchTolerance,
		SignatureWindow: cfg.SignatureWindow,
	}, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	req, err := engine.CreatePaymentRequest(args[0], amount, nil)
	if err != nil {
		return err
	}
	logger.Info("payment request issued",
		zap.String("id", req.ID),
		zap.String("address", req.Address),
		zap.Uint64("amount", req.ExpectedAmount),
		zap.Time("expires_at", req.ExpiresAt),
	)

	outcome := make(chan paywatch.WatchResult, 1)
	watch, err := engine.WatchPaymentConfirmation(req.ID, func(res paywatch.WatchResult) {
		outcome <- res
	})
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case res := <-outcome:
		engine.SweepExpiredPayments(cfg.SweepRetention)
		if res.Err != nil {
			return res.Err
		}
		if res.Status != paywatch.StatusConfirmed {
			return fmt.Errorf("request %s expired at %s unpaid", res.ID, res.ExpiresAt.Format(time.RFC3339))
		}
		fmt.Printf("confirmed: request %s paid by tx %s\n", res.ID, res.TxRef)
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		watch.Cancel()
		return nil
	}
}
