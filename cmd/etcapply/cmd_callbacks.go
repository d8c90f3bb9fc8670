package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"etcapply/internal/model"
	"etcapply/pkg/config"
	"etcapply/pkg/infra/redis"
	"etcapply/pkg/lmstfy"
	"etcapply/pkg/logger"
)

var callbacksFlags struct {
	once    bool
	redis   bool
	timeout time.Duration
	ttr     time.Duration
}

var callbacksCmd = &cobra.Command{
	Use:   "callbacks",
	Short: "Consume apply results from the lmstfy callback queue or the redis channel",
	RunE:  runCallbacks,
}

func init() {
	f := callbacksCmd.Flags()
	f.BoolVar(&callbacksFlags.once, "once", false, "Exit after the first empty poll (lmstfy only)")
	f.BoolVar(&callbacksFlags.redis, "redis", false, "Listen on notify.redis_channel instead of the lmstfy queue")
	f.DurationVar(&callbacksFlags.timeout, "timeout", 10*time.Second, "Long-poll timeout")
	f.DurationVar(&callbacksFlags.ttr, "ttr", 30*time.Second, "Time to run before the job is redelivered")
}

func runCallbacks(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if callbacksFlags.redis {
		return listenRedis(cmd, cfg)
	}
	lc := cfg.Notify.Lmstfy
	if lc.Host == "" || cfg.Notify.CallbackQueue == "" {
		return fmt.Errorf("notify.lmstfy.host and notify.callback_queue are required")
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	client := lmstfy.NewClient(lc.Host, lc.Port, lc.Namespace, lc.Token, cfg.Notify.CallbackQueue)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	for ctx.Err() == nil {
		job, err := client.Consume(callbacksFlags.timeout, callbacksFlags.ttr)
		if err != nil {
			log.Warnf(ctx, "[Callbacks] Consume failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			if callbacksFlags.once {
				return nil
			}
			continue
		}

		printNotification(out, &job.Notification)
		if err := client.Ack(job.ID); err != nil {
			log.Warnf(ctx, "[Callbacks] Ack %s failed: %v", job.ID, err)
		}
	}
	return nil
}

// listenRedis 订阅 redis 通知频道直到收到信号
func listenRedis(cmd *cobra.Command, cfg *config.Config) error {
	ep, ok := cfg.Endpoint(config.EndpointRedis)
	if !ok || cfg.Notify.RedisChannel == "" {
		return fmt.Errorf("a redis endpoint and notify.redis_channel are required")
	}
	db, err := ep.RedisDB()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	ps, err := redis.NewPubSub(ep.Address, ep.Password, db, cfg.Notify.RedisChannel)
	if err != nil {
		return err
	}
	defer ps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return ps.Listen(ctx, func(n *model.ApplyNotification) {
		printNotification(out, n)
	}, badPayloadLogger(ctx, log))
}

func badPayloadLogger(ctx context.Context, log logger.Logger) func(string, error) {
	return func(payload string, err error) {
		log.Warnf(ctx, "[Callbacks] Skip bad payload %q: %v", payload, err)
	}
}

func printNotification(out io.Writer, n *model.ApplyNotification) {
	fmt.Fprintf(out, "%s apply=%s car=%s order=%s status=%s step=%d %d%% %s\n",
		time.Unix(n.Timestamp, 0).Format(time.RFC3339), n.ApplyID, n.CarNum, n.OrderID, n.Status, n.FailedStep, n.Percent, n.Message)
}
