// Package config provides configuration management for the Payone payment
// gateway service. Configuration can be loaded from YAML files and overridden
// by environment variables.
package config

import (
	"fmt"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the payment gateway service.
// Environment variables take precedence over YAML values.
type Config struct {
	IsDebug    bool  `yaml:"is_debug" env:"DEBUG" env-default:"false"`
	LogRecords int64 `yaml:"log_records" env:"LOG_RECORDS" env-default:"0"`
	Listen     struct {
		BindIP   string `yaml:"bind_ip" env:"BIND_IP" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PORT" env-default:"5200"`
		TLS      bool   `yaml:"tls_enabled" env:"TLS_ENABLED" env-default:"false"`
		CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE" env-default:""`
		KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE" env-default:""`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:""`
	} `yaml:"mongo"`
	Payone struct {
		// Mode selects the processor environment: "test" or "live".
		Mode         string `yaml:"mode" env:"PAYONE_MODE" env-default:"test"`
		MerchantId   string `yaml:"merchant_id" env:"PAYONE_MERCHANT_ID" env-default:""`
		PortalId     string `yaml:"portal_id" env:"PAYONE_PORTAL_ID" env-default:""`
		SubAccountId string `yaml:"sub_account_id" env:"PAYONE_SUB_ACCOUNT_ID" env-default:""`
		// Key is the shared portal secret used for request signing.
		Key          string `yaml:"key" env:"PAYONE_KEY" env-default:""`
		ClientApiUrl string `yaml:"client_api_url" env:"PAYONE_CLIENT_API_URL" env-default:"https://secure.pay1.de/client-api/"`
		ServerApiUrl string `yaml:"server_api_url" env:"PAYONE_SERVER_API_URL" env-default:"https://api.pay1.de/post-gateway/"`
		// VerifyResponseHash enables the optional response-hash check on
		// redirect-return parameters. The processor does not require it.
		VerifyResponseHash bool `yaml:"verify_response_hash" env:"PAYONE_VERIFY_RESPONSE_HASH" env-default:"false"`
	} `yaml:"payone"`
	Checkout struct {
		// BaseUrl is the public base of the shop, used to build the
		// success/back/error callback URLs sent to the processor.
		BaseUrl string `yaml:"base_url" env:"CHECKOUT_BASE_URL" env-default:"http://localhost:5200"`
		// Ordered checkout steps; the redirect round-trip happens at the
		// step whose id equals PaymentStep.
		PaymentStep string         `yaml:"payment_step" env:"CHECKOUT_PAYMENT_STEP" env-default:"payment"`
		Steps       []CheckoutStep `yaml:"steps"`
	} `yaml:"checkout"`
}

// CheckoutStep describes one step of the host checkout flow and the panes it
// renders.
type CheckoutStep struct {
	Id    string   `yaml:"id"`
	Panes []string `yaml:"panes"`
}

var instance *Config
var once sync.Once

// GetConfig loads configuration from the specified YAML file path.
// This function uses a singleton pattern and only loads the config once.
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("load config: %w; %s", err, desc)
			instance = nil
		}
	})
	return instance, err
}
