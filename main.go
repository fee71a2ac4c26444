package main

import (
	"flag"

	"payone/config"
	"payone/internal"
	"payone/services"
)

func main() {

	logger := internal.NewLogger("main", false, nil)

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	logger.Info("using config file: " + *configPath)
	conf, err := config.GetConfig(*configPath)
	if err != nil {
		logger.Error("boot", err)
		return
	}

	var mongo services.Database
	if conf.Mongo.Enabled {
		mongo, err = internal.NewMongoClient(conf)
		if err != nil {
			logger.Error("mongo client", err)
			return
		}
		logger.Info("mongo client initialized")
	}

	api := internal.NewApiClient(conf)
	api.SetLogger(internal.NewLogger("api", conf.IsDebug, mongo))

	wallet := internal.NewWallet(conf, api)
	wallet.SetLogger(internal.NewLogger("wallet", conf.IsDebug, mongo))
	wallet.SetDatabase(mongo)

	server := internal.NewServer(conf)
	server.SetLogger(internal.NewLogger("server", conf.IsDebug, mongo))
	server.SetDatabase(mongo)
	server.SetCheckout(internal.NewStaticCheckoutFlow(conf))
	server.RegisterGateway(wallet)

	err = server.Start()
	if err != nil {
		logger.Error("server start", err)
		return
	}

}
