package db

import (
	"context"
	"errors"
	"fmt"

	"community-server/conf"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRecordNotFound = gorm.ErrRecordNotFound
	ErrUsernameTaken  = errors.New("username already taken")
)

type DB struct {
	log *zap.Logger
	orm *gorm.DB
}

func Init(conf *conf.GConfig, log *zap.Logger) (*DB, error) {
	dialector, err := dialect(conf.AppCfg.DbDriver, conf.AppCfg.DbConn)
	if err != nil {
		return nil, err
	}
	return Open(dialector, log)
}

func dialect(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", driver)
}

// Open connects through the given dialector, migrates the schema and seeds
// the built-in roles and permissions.
func Open(dialector gorm.Dialector, log *zap.Logger) (*DB, error) {
	config := gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   NewGormLog(log),
	}
	dbIns, err := gorm.Open(dialector, &config)
	if err != nil {
		return nil, err
	}
	dbms := &DB{
		log: log.Named("\u001B[33m[DB]\u001B[0m"),
		orm: dbIns,
	}
	err = dbIns.AutoMigrate(
		&User{}, &Role{}, &UserRole{}, &Permission{}, &TokenRevocation{})
	if err != nil {
		return nil, err
	}
	if err = dbms.seed(context.Background()); err != nil {
		return nil, err
	}
	return dbms, nil
}

func (d *DB) Close() error {
	sqlDB, err := d.orm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *DB) seed(ctx context.Context) error {
	return d.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		permits := make(map[string]Permission, len(builtinPermissions))
		for _, p := range builtinPermissions {
			p := p
			err := tx.Where(Permission{Name: p.Name}).Attrs(p).FirstOrCreate(&p).Error
			if err != nil {
				return err
			}
			permits[p.Name] = p
		}
		for _, r := range builtinRoles {
			role := Role{Id: r.id, Code: r.code, Name: r.name}
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error
			if err != nil {
				return err
			}
			var grants []Permission
			for _, name := range r.permits {
				grants = append(grants, permits[name])
			}
			if len(grants) == 0 {
				continue
			}
			if err = tx.Model(&role).Association("Permissions").Append(grants); err != nil {
				return err
			}
		}
		return nil
	})
}

type Page struct {
	Records any   `json:"records"`
	Total   int64 `json:"total"`
	Size    int   `json:"size"`
	Current int   `json:"current"`
	Pages   int64 `json:"pages"`
}
