package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/michaelmargolis/6DoF-Coaster/coaster/nl2"
	"github.com/michaelmargolis/6DoF-Coaster/comms"
	"github.com/michaelmargolis/6DoF-Coaster/control"
	"github.com/michaelmargolis/6DoF-Coaster/onboard"
	"github.com/michaelmargolis/6DoF-Coaster/onboard/hardware"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
	"github.com/michaelmargolis/6DoF-Coaster/store"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "main")

type EnvConfig struct {
	JWT_ISSUER    string   `env:"JWT_ISSUER" envDefault:"DEV"`
	JWT_SECRET    string   `env:"JWT_SECRET"`
	ORIGINS       []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	DEBUG         bool     `env:"DEBUG" envDefault:"0"`
	NL2_HOST      string   `env:"NL2_HOST" envDefault:"127.0.0.1"`
	NL2_PORT      int      `env:"NL2_PORT" envDefault:"15151"`
	FRAME_RATE_MS int      `env:"FRAME_RATE_MS" envDefault:"50"`
	GAIN          float64  `env:"GAIN"`        // 0 keeps the stored value
	LIFT_HEIGHT   float64  `env:"LIFT_HEIGHT"` // metres, 0 keeps the stored value
	CHAIR_CONFIG  string   `env:"CHAIR_CONFIG" envDefault:"./chair_config.yaml"`
	DB_PATH       string   `env:"DB_PATH" envDefault:"./tmp/coaster.db"`
	HTTP_ADDR     string   `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	SERIAL_PORT   string   `env:"SERIAL_PORT"`
	HTMLDIR       string   `env:"HTMLDIR" envDefault:"./frontend/dist/"`
	DB            *storm.DB
	Conductor     *comms.Conductor
	Controller    *control.Controller
	Simulated     bool
}

var (
	ENV *EnvConfig
)

func init() {
	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		log.WithError(err).Fatal("invalid environment")
	}
	if ENV.DEBUG {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func main() {
	simulated := flag.Bool("sim", false, "Drive a simulated muscle controller")
	port := flag.String("port", ENV.HTTP_ADDR, "Specify the ip:port to listen on")
	withShell := flag.Bool("shell", false, "Start the operator shell on stdin")
	flag.Parse()
	ENV.Simulated = *simulated

	if err := loadJWTSecret(ENV); err != nil {
		log.WithError(err).Fatal("refusing to start without a signing key")
	}

	dbFile, err := filepath.Abs(ENV.DB_PATH)
	if err != nil {
		log.WithError(err).Fatal("bad database path")
	}
	if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
		log.WithError(err).Fatal("unable to create database directory")
	}
	db, err := openDb(dbFile)
	if err != nil {
		log.WithError(err).Fatal("unable to open database")
	}
	ENV.DB = db
	defer ENV.DB.Close()

	settings, err := store.Load(db)
	if err != nil {
		log.WithError(err).Fatal("unable to load settings")
	}
	if settings.Tune(ENV.GAIN, ENV.LIFT_HEIGHT) {
		if err := store.Save(db, &settings); err != nil {
			log.WithError(err).Warn("unable to save settings")
		}
	}
	log.WithFields(logrus.Fields{"gain": settings.Gain, "lift_height": settings.LiftHeight}).Info("decoder tuning")

	cfg, err := onboard.LoadChairConfig(ENV.CHAIR_CONFIG)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", ENV.CHAIR_CONFIG).Warn("chair config not found, using defaults")
		cfg = onboard.DefaultChairConfig()
	} else if err != nil {
		log.WithError(err).Fatal("unable to load chair config")
	}

	driver, closer := openDriver(cfg)
	if closer != nil {
		defer closer()
	}

	rctx := ride.NewContext(ride.Lengths{})
	rctx.Intensity = settings.Intensity
	chair, err := onboard.NewChair(cfg, driver, rctx)
	if err != nil {
		log.WithError(err).Fatal("unable to configure chair")
	}

	link := nl2.NewLink(net.JoinHostPort(ENV.NL2_HOST, strconv.Itoa(ENV.NL2_PORT)))
	ctrl := control.NewController(chair, nl2.NewMessenger(link), rctx)
	ctrl.Frame = time.Duration(ENV.FRAME_RATE_MS) * time.Millisecond
	ctrl.Coaster.Seat = int32(settings.Seat)
	ctrl.Coaster.Transform.SetGain(settings.Gain)
	ctrl.Coaster.Transform.SetLiftHeight(settings.LiftHeight)
	ctrl.Persist = func(cmd ride.Command) {
		if settings.Apply(cmd) {
			if err := store.Save(db, &settings); err != nil {
				log.WithError(err).Warn("unable to save settings")
			}
		}
	}
	ENV.Controller = ctrl

	ENV.Conductor = comms.NewConductor(ctrl)
	ctrl.Publish = ENV.Conductor.Publish

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := ctrl.Coaster.Begin(bctx); err != nil {
		log.WithError(err).Warn("simulation host not available yet")
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	if *withShell {
		go newShell(ENV.Conductor, chair).Run()
	}

	srv := &http.Server{Addr: *port, Handler: newRouter()}
	go func() {
		log.WithField("addr", *port).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("interrupted, shutting down")
	case <-ctrl.Done():
		log.Info("quit requested, shutting down")
	}
	stop()

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("control loop ended")
	}
}

// openDriver picks the muscle controller. The serial test platform is used when a
// port is configured and the simulator was not requested.
func openDriver(cfg onboard.ChairConfig) (hardware.Driver, func()) {
	if ENV.Simulated || ENV.SERIAL_PORT == "" {
		log.Info("using simulated muscle controller")
		return hardware.NewSimulatedDriver(), nil
	}
	d, err := hardware.OpenSerial(ENV.SERIAL_PORT, cfg.ActuatorLimits().MinLength)
	if err != nil {
		log.WithError(err).WithField("port", ENV.SERIAL_PORT).Fatal("unable to open serial platform")
	}
	return d, func() { d.Close() }
}

func newRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", Login)
		r.Get("/status", StatusHandler)
		r.Get("/station", StationHandler)

		r.Group(func(r chi.Router) {
			r.Use(ValidateJWT)
			r.Post("/cmd", CommandHandler)
			r.Get("/refresh_token", JWTRefresh)
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.Get("/status", StatusSocketHandler)
		r.Group(func(r chi.Router) {
			if !ENV.DEBUG {
				r.Use(ValidateJWT)
			} else {
				log.Warn("running in debug mode, control socket authentication disabled")
			}
			r.Get("/control", ControlSocketHandler)
		})
	})

	FileServer(r, "/", http.Dir(ENV.HTMLDIR))
	return r
}

func openDb(dbFile string) (db *storm.DB, err error) {
	db, err = store.Open(dbFile)
	if err != nil {
		return
	}

	if err := db.Init(&Operator{}); err != nil {
		db.Close()
		return nil, err
	}
	return
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	})
}
