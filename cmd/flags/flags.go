package flags

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/npa-publisher-orchestrator/awsutil"
	"github.com/ruteri/npa-publisher-orchestrator/common"
	"github.com/ruteri/npa-publisher-orchestrator/compute"
	"github.com/ruteri/npa-publisher-orchestrator/httpserver"
	"github.com/ruteri/npa-publisher-orchestrator/orchestrator"
	"github.com/ruteri/npa-publisher-orchestrator/remotecmd"
	"github.com/ruteri/npa-publisher-orchestrator/secrets"
	"github.com/ruteri/npa-publisher-orchestrator/tenant"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String("metrics-addr")
	enablePprof := cCtx.Bool("pprof")
	drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// Wiring holds the fully constructed controller and the pieces the server
// and operator commands need individually.
type Wiring struct {
	Controller *orchestrator.Controller
	State      *orchestrator.FileStateStore
	Lock       *orchestrator.FlockPlanLock
}

// BuildController wires the tenant client, secret store, compute provisioner,
// and pollers from flags into a reconciliation controller. The tenant API
// token is read from the environment only.
func BuildController(cCtx *cli.Context, logger *slog.Logger) (*Wiring, error) {
	authToken, err := tenant.TokenFromEnv()
	if err != nil {
		return nil, err
	}

	tenantClient, err := tenant.NewClient(tenant.Config{
		BaseURL:   cCtx.String(TenantURLFlag.Name),
		AuthToken: authToken,
		Log:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant client: %w", err)
	}

	clients, err := awsutil.NewClientSet(
		cCtx.String(AWSRegionFlag.Name),
		cCtx.String(AWSAccessKeyFlag.Name),
		cCtx.String(AWSSecretKeyFlag.Name),
		cCtx.String(AWSEndpointFlag.Name),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS clients: %w", err)
	}

	storeFactory := secrets.NewStoreFactory(logger, clients.SSM)
	store, err := storeFactory.StoreFor(cCtx.String(SecretBackendFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to create secret store: %w", err)
	}

	app := cCtx.String(AppNameFlag.Name)
	provisioner, err := compute.NewEC2Provisioner(clients.EC2, compute.Config{
		AMIID:               cCtx.String(AMIFlag.Name),
		InstanceType:        cCtx.String(InstanceTypeFlag.Name),
		SubnetIDs:           cCtx.StringSlice(SubnetsFlag.Name),
		SecurityGroupIDs:    cCtx.StringSlice(SecurityGroupsFlag.Name),
		InstanceProfileName: cCtx.String(InstanceProfileFlag.Name),
		BootstrapScript:     cCtx.String(BootstrapScriptFlag.Name),
		App:                 app,
		Log:                 logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provisioner: %w", err)
	}

	poller := remotecmd.NewPoller(clients.SSM, remotecmd.PollerConfig{Log: logger})
	executor := remotecmd.NewExecutor(clients.SSM, store, remotecmd.ExecutorConfig{Log: logger})

	state, err := orchestrator.NewFileStateStore(cCtx.String(StateFileFlag.Name), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create state store: %w", err)
	}
	lockTimeout := time.Duration(cCtx.Int64(LockTimeoutFlag.Name)) * time.Second
	lock := orchestrator.NewFlockPlanLock(cCtx.String(LockFileFlag.Name), lockTimeout, logger)

	controller, err := orchestrator.New(orchestrator.Config{
		App:      app,
		Tenant:   tenantClient,
		Secrets:  store,
		Compute:  provisioner,
		Poller:   poller,
		Executor: executor,
		State:    state,
		Lock:     lock,
		Log:      logger,
	})
	if err != nil {
		return nil, err
	}

	return &Wiring{Controller: controller, State: state, Lock: lock}, nil
}

var TenantURLFlag = &cli.StringFlag{
	Name:     "tenant-url",
	Required: true,
	Usage:    "tenant API root, e.g. https://example.goskope.com/api/v2",
}

var AppNameFlag = &cli.StringFlag{
	Name:  "app",
	Value: "npa",
	Usage: "deployment name used to namespace tags and secret paths",
}

var PublisherNameFlag = &cli.StringFlag{
	Name:  "name",
	Value: "npa-pub",
	Usage: "base display name for publisher units",
}

var PublisherCountFlag = &cli.IntFlag{
	Name:  "count",
	Value: 1,
	Usage: "desired number of publisher units",
}

var AWSRegionFlag = &cli.StringFlag{
	Name:  "aws-region",
	Value: "us-east-1",
	Usage: "AWS region for EC2 and SSM",
}
var AWSAccessKeyFlag = &cli.StringFlag{
	Name:  "aws-access-key-id",
	Usage: "static AWS access key id; empty uses the default credential chain",
}
var AWSSecretKeyFlag = &cli.StringFlag{
	Name:  "aws-secret-access-key",
	Usage: "static AWS secret access key; empty uses the default credential chain",
}
var AWSEndpointFlag = &cli.StringFlag{
	Name:  "aws-endpoint",
	Usage: "custom AWS endpoint, mainly for localstack",
}

var SecretBackendFlag = &cli.StringFlag{
	Name:  "secret-backend",
	Value: "awsssm://",
	Usage: "secret store URI: awsssm://[kms-key-id], vault://host/mount, or file:///dir",
}

var AMIFlag = &cli.StringFlag{
	Name:     "ami",
	Required: true,
	Usage:    "publisher AMI id",
}
var InstanceTypeFlag = &cli.StringFlag{
	Name:  "instance-type",
	Value: "t3.medium",
	Usage: "EC2 instance type for publisher instances",
}
var SubnetsFlag = &cli.StringSliceFlag{
	Name:     "subnet",
	Required: true,
	Usage:    "subnet id, repeatable; units spread across subnets by ordinal",
}
var SecurityGroupsFlag = &cli.StringSliceFlag{
	Name:     "security-group",
	Required: true,
	Usage:    "security group id, repeatable",
}
var InstanceProfileFlag = &cli.StringFlag{
	Name:  "instance-profile",
	Usage: "IAM instance profile name granting SSM agent access",
}
var BootstrapScriptFlag = &cli.StringFlag{
	Name:  "bootstrap-script",
	Usage: "optional user-data script; must never contain secrets",
}

var StateFileFlag = &cli.StringFlag{
	Name:  "state-file",
	Value: "/var/lib/npa-publisher-orchestrator/state.json",
	Usage: "path to the unit state file",
}
var LockFileFlag = &cli.StringFlag{
	Name:  "lock-file",
	Value: "/var/lib/npa-publisher-orchestrator/plan.lock",
	Usage: "path to the plan lock file",
}
var LockTimeoutFlag = &cli.Int64Flag{
	Name:  "lock-timeout-seconds",
	Value: 300,
	Usage: "seconds to wait for the plan lock before giving up",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

// CommonFlags are shared by every command.
var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

// ProvisioningFlags configure the tenant, secret, and compute wiring.
var ProvisioningFlags = []cli.Flag{
	TenantURLFlag,
	AppNameFlag,
	AWSRegionFlag,
	AWSAccessKeyFlag,
	AWSSecretKeyFlag,
	AWSEndpointFlag,
	SecretBackendFlag,
	AMIFlag,
	InstanceTypeFlag,
	SubnetsFlag,
	SecurityGroupsFlag,
	InstanceProfileFlag,
	BootstrapScriptFlag,
	StateFileFlag,
	LockFileFlag,
	LockTimeoutFlag,
}
