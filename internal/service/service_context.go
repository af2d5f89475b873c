package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"nni-keeper/internal/config"
	"nni-keeper/internal/logging"
	"nni-keeper/internal/nni"
	"nni-keeper/internal/repository"
	"nni-keeper/internal/status"

	"gorm.io/gorm"
)

type ServiceContext struct {
	Config     *config.Config
	Store      *repository.Store
	Status     status.Store
	Promoter   *Promoter
	Supervisor *Supervisor

	closers []io.Closer
}

// NewServiceContext 按配置组装服务；配置了 Redis 时 watcher 状态写入 Redis
func NewServiceContext(cfg *config.Config, conn *gorm.DB) (*ServiceContext, error) {
	var st status.Store = status.NewMemoryStore(cfg.Redis.StatusTTL)
	var closers []io.Closer

	if cfg.Redis.Host != "" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		rs, err := status.NewRedisStore(addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix, cfg.Redis.StatusTTL)
		if err != nil {
			return nil, err
		}
		st = rs
		closers = append(closers, rs)
	}

	client := nni.NewCLI(cfg.NNI.Binary, cfg.NNI.CommandTimeout)
	svc := Assemble(cfg, conn, client, st)
	svc.closers = closers
	return svc, nil
}

// Assemble 用给定的编排客户端和状态存储组装服务
func Assemble(cfg *config.Config, conn *gorm.DB, client nni.Client, st status.Store) *ServiceContext {
	store := repository.NewStore(conn)
	poller := NewPoller(client, cfg.NNI.TerminalMarkers, logging.New(cfg.Log, "poller"))
	promoter := NewPromoter(store, cfg.Watcher.Retry, logging.New(cfg.Log, "promoter"))

	return &ServiceContext{
		Config:     cfg,
		Store:      store,
		Status:     st,
		Promoter:   promoter,
		Supervisor: NewSupervisor(poller, store, promoter, st, cfg.Watcher, logging.New(cfg.Log, "supervisor")),
	}
}

// Close 停止所有 watcher 后释放外部连接
func (svc *ServiceContext) Close(ctx context.Context) error {
	err := svc.Supervisor.Shutdown(ctx)
	for _, c := range svc.closers {
		err = errors.Join(err, c.Close())
	}
	return err
}
