/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	sourcev1 "github.com/fluxcd/source-controller/api/v1"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/certwatcher"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/webhook"

	configbutleraiv1alpha1 "github.com/ConfigButler/secret-manager-operator/api/v1alpha1"
	"github.com/ConfigButler/secret-manager-operator/internal/artifact"
	"github.com/ConfigButler/secret-manager-operator/internal/backoff"
	"github.com/ConfigButler/secret-manager-operator/internal/config"
	"github.com/ConfigButler/secret-manager-operator/internal/controller"
	"github.com/ConfigButler/secret-manager-operator/internal/leader"
	"github.com/ConfigButler/secret-manager-operator/internal/metrics"
	"github.com/ConfigButler/secret-manager-operator/internal/provider/pactmode"
	"github.com/ConfigButler/secret-manager-operator/internal/sops"
	webhookv1alpha1 "github.com/ConfigButler/secret-manager-operator/internal/webhook/v1alpha1"
	// +kubebuilder:scaffold:imports
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(sourcev1.AddToScheme(scheme))

	utilruntime.Must(configbutleraiv1alpha1.AddToScheme(scheme))
	// +kubebuilder:scaffold:scheme
}

// +kubebuilder:rbac:groups=core,resources=pods,verbs=get;patch

// nolint:gocyclo
func main() {
	var webhookPort int
	var metricsPort int
	var webhookCertPath, webhookCertName, webhookCertKey string
	var enableLeaderElection bool
	var enableHTTP2 bool
	var watchApplications bool
	var tlsOpts []func(*tls.Config)

	flag.IntVar(&webhookPort, "webhook-port", 9443, "The port for the webhook server.")
	flag.IntVar(&metricsPort, "metrics-port", 8080, "The port for the metrics server.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	flag.StringVar(&webhookCertPath, "webhook-cert-path", "", "The directory that contains the webhook certificate.")
	flag.StringVar(&webhookCertName, "webhook-cert-name", "tls.crt", "The name of the webhook certificate file.")
	flag.StringVar(&webhookCertKey, "webhook-cert-key", "tls.key", "The name of the webhook key file.")
	flag.BoolVar(&enableHTTP2, "enable-http2", false,
		"If set, HTTP/2 will be enabled for the metrics and webhook servers")
	flag.BoolVar(&watchApplications, "watch-applications", false,
		"Watch Argo CD Application resources. Requires the Application CRD to be installed.")

	opts := zap.Options{
		Development:     true,
		StacktraceLevel: zapcore.ErrorLevel,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg, err := config.Load()
	if err != nil {
		setupLog.Error(err, "invalid controller configuration")
		os.Exit(1)
	}

	if err := pactmode.Init(); err != nil {
		setupLog.Error(err, "invalid PACT_MODE endpoint configuration")
		os.Exit(1)
	}
	if pactmode.Enabled() {
		setupLog.Info("PACT mode active, provider endpoints are overridden")
	}

	// if the enable-http2 flag is false (the default), http/2 should be disabled
	// due to its vulnerabilities. More specifically, disabling http/2 will
	// prevent from being vulnerable to the HTTP/2 Stream Cancellation and
	// Rapid Reset CVEs. For more information see:
	// - https://github.com/advisories/GHSA-qppj-fm5r-hxr3
	// - https://github.com/advisories/GHSA-4374-p667-p6c8
	disableHTTP2 := func(c *tls.Config) {
		setupLog.Info("disabling http/2")
		c.NextProtos = []string{"http/1.1"}
	}

	if !enableHTTP2 {
		tlsOpts = append(tlsOpts, disableHTTP2)
	}

	// Create watchers for webhooks certificates
	var webhookCertWatcher *certwatcher.CertWatcher

	// Initial webhook TLS options
	webhookTLSOpts := tlsOpts

	if len(webhookCertPath) > 0 {
		setupLog.Info("Initializing webhook certificate watcher using provided certificates",
			"webhook-cert-path", webhookCertPath, "webhook-cert-name", webhookCertName, "webhook-cert-key", webhookCertKey)

		var err error
		webhookCertWatcher, err = certwatcher.New(
			filepath.Join(webhookCertPath, webhookCertName),
			filepath.Join(webhookCertPath, webhookCertKey),
		)
		if err != nil {
			setupLog.Error(err, "Failed to initialize webhook certificate watcher")
			os.Exit(1)
		}

		webhookTLSOpts = append(webhookTLSOpts, func(config *tls.Config) {
			config.GetCertificate = webhookCertWatcher.GetCertificate
		})
	}

	// Setup separate metrics and health probe server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	metricsMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	metricsServer := &http.Server{
		Addr:    ":" + strconv.Itoa(metricsPort),
		Handler: metricsMux,
	}

	go func() {
		setupLog.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			setupLog.Error(err, "problem running metrics server")
			os.Exit(1)
		}
	}()

	webhookServer := webhook.NewServer(webhook.Options{
		Port:    webhookPort,
		TLSOpts: webhookTLSOpts,
	})

	restConfig := ctrl.GetConfigOrDie()
	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:           scheme,
		WebhookServer:    webhookServer,
		LeaderElection:   enableLeaderElection,
		LeaderElectionID: "9ed3440e.configbutler.ai",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		setupLog.Error(err, "unable to build clientset for the sops key watcher")
		os.Exit(1)
	}

	snapshot := sops.NewKeySnapshot(cfg.SopsSecretNamespace)
	keyEvents := make(chan event.GenericEvent, 64)

	keyWatcher := &sops.KeyWatcher{
		Clientset:    clientset,
		Log:          ctrl.Log.WithName("sops-key-watcher"),
		Snapshot:     snapshot,
		SecretName:   cfg.SopsSecretName,
		RestartDelay: time.Duration(cfg.WatchRestartSeconds) * time.Second,
		Events:       keyEvents,
	}
	if err := mgr.Add(keyWatcher); err != nil {
		handleErr(err, "unable to add sops key watcher to manager")
	}

	resolver := &artifact.Resolver{
		Client:    mgr.GetClient(),
		CacheDir:  cfg.CacheDir,
		GitBinary: cfg.GitBinary,
		Log:       ctrl.Log.WithName("artifact-resolver"),
	}

	if err := (&controller.SecretManagerConfigReconciler{
		Client:            mgr.GetClient(),
		Scheme:            mgr.GetScheme(),
		Recorder:          mgr.GetEventRecorderFor("secretmanagerconfig-controller"),
		Config:            cfg,
		Backoff:           backoff.NewRegistry(cfg.BackoffCap()),
		Snapshot:          snapshot,
		Resolver:          resolver,
		KeyEvents:         keyEvents,
		WatchApplications: watchApplications,
	}).SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "SecretManagerConfig")
		os.Exit(1)
	}

	// nolint:goconst
	if os.Getenv("ENABLE_WEBHOOKS") != "false" {
		if err := webhookv1alpha1.SetupSecretManagerConfigWebhookWithManager(
			mgr, cfg.MinPullInterval, cfg.MinReconcileInterval); err != nil {
			setupLog.Error(err, "unable to create webhook", "webhook", "SecretManagerConfig")
			os.Exit(1)
		}
	}
	// +kubebuilder:scaffold:builder

	// Add the PodLabeler runnable to the manager.
	// It will only be started for the leader.
	if err := mgr.Add(&leader.PodLabeler{
		Client:    mgr.GetClient(),
		Log:       ctrl.Log.WithName("leader-labeler"),
		PodName:   leader.GetPodName(),
		Namespace: leader.GetPodNamespace(),
	}); err != nil {
		handleErr(err, "unable to add leader labeler to manager")
	}

	if webhookCertWatcher != nil {
		setupLog.Info("Adding webhook certificate watcher to manager")
		if err := mgr.Add(webhookCertWatcher); err != nil {
			handleErr(err, "unable to add webhook certificate watcher to manager")
		}
	}

	// Initialize OTLP exporter
	if shutdown, err := metrics.InitOTLPExporter(context.Background()); err != nil {
		handleErr(err, "unable to initialize OTLP exporter")
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				setupLog.Error(err, "failed to shutdown OTLP exporter")
			}
		}()
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		handleErr(err, "problem running manager")
	}
}

func handleErr(err error, msg string) {
	if err != nil {
		setupLog.Error(err, msg)
		os.Exit(1)
	}
}
