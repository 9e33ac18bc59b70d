package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"community-server/conf"
	"community-server/db"
	"community-server/infra"
	"community-server/server"
	"community-server/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfgFile string

// rootCmd serves the api until the process is signalled.
var rootCmd = &cobra.Command{
	Use:   "community-server",
	Short: "Community Server",
	Long:  `Community Server serves the user REST api of the community platform.`,
	Run: func(cmd *cobra.Command, args []string) {
		start(cfgFile)
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user with a role",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")
		role, _ := cmd.Flags().GetString("role")
		return addUser(cfgFile, username, password, role)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "conf/conf.yml", "config file")
	userAddCmd.Flags().String("username", "", "user name")
	userAddCmd.Flags().String("password", "", "plain password, stored as a bcrypt hash")
	userAddCmd.Flags().String("role", db.RoleCodeUser, "role code or id")
	_ = userAddCmd.MarkFlagRequired("username")
	_ = userAddCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}

func start(confFile string) {
	confIns, err := conf.InitConf(confFile, func(config interface{}) {
		if next, ok := config.(*conf.GConfig); ok && next.LogCfg != nil {
			infra.SetLogLevel(next.LogCfg.Level)
			zap.L().Info("config reloaded", zap.String("level", infra.LogLevel.String()))
		}
	})
	if err != nil {
		fmt.Printf("init conf failed, err:%v\n", err)
		return
	}
	logger := infra.InitLogger(confIns.LogCfg)
	defer func() { _ = logger.Sync() }()
	dbms, err := db.Init(confIns, logger)
	if err != nil {
		logger.Error("db init failed, err", zap.Error(err))
		return
	}
	defer func() { _ = dbms.Close() }()
	sessions, err := infra.NewSessionStore(confIns.AuthCfg, confIns.RedisCfg)
	if err != nil {
		logger.Error("session store init failed, err", zap.Error(err))
		return
	}
	app, err := server.NewServer(confIns, logger, dbms, sessions)
	if err != nil {
		logger.Error("init app failed, err", zap.Error(err))
		return
	}
	go app.StartHttpServer()
	logger.Info("\u001B[32m community server started\u001B[0m", zap.String("addr", confIns.AppCfg.HttpAddr))
	waitForShutdown(logger, app)
}

func addUser(confFile, username, password, role string) error {
	confIns, err := conf.InitConf(confFile, nil)
	if err != nil {
		return err
	}
	logger := infra.InitLogger(confIns.LogCfg)
	dbms, err := db.Init(confIns, logger)
	if err != nil {
		return err
	}
	defer func() { _ = dbms.Close() }()

	ctx := context.Background()
	roles, err := dbms.GetRoles(ctx)
	if err != nil {
		return err
	}
	rid := 0
	for _, r := range roles {
		if r.Code == role || strconv.Itoa(r.Id) == role {
			rid = r.Id
		}
	}
	if rid == 0 {
		return fmt.Errorf("unknown role %q", role)
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	u, err := dbms.CreateUser(ctx, &db.User{Username: username, Password: hash}, rid)
	if err != nil {
		return err
	}
	logger.Info("user created", zap.Int64("id", u.Id), zap.String("username", u.Username), zap.Int("role", rid))
	return nil
}

// waitForShutdown blocks until an exit signal arrives, then closes the server.
func waitForShutdown(log *zap.Logger, app *server.CommunityServer) {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGABRT)
	defer stop()
	<-ctx.Done()
	log.Info("signal received, shutting down")
	app.Close()
}

func main() {
	if err := os.Setenv("TZ", "UTC"); err != nil {
		return
	}
	runtime.GOMAXPROCS(runtime.NumCPU())
	cobra.CheckErr(rootCmd.Execute())
}
