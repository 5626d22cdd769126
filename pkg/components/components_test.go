package components

import (
	"fmt"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubernix/kubernix/pkg/config"
	"github.com/kubernix/kubernix/pkg/netplan"
	"github.com/kubernix/kubernix/pkg/paths"
	"github.com/kubernix/kubernix/pkg/pki"
)

func testBuildContext(t *testing.T, nodes int) *BuildContext {
	t.Helper()
	dir := t.TempDir()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Set("root", dir))
	require.NoError(t, fs.Set("container", "true"))
	require.NoError(t, fs.Set("nodes", fmt.Sprintf("%d", nodes)))
	cfg, err := config.Resolve(fs)
	require.NoError(t, err)

	layout := paths.New(dir)
	plan, err := netplan.Compute(cfg.CIDR(), nodes)
	require.NoError(t, err)
	bundle, err := pki.GenerateOrLoad(layout, plan, "devbox", nodes)
	require.NoError(t, err)

	return &BuildContext{
		Config:   cfg,
		Layout:   layout,
		Plan:     plan,
		Bundle:   bundle,
		Hostname: "devbox",
		LookPath: func(name string) (string, error) { return "/nix/store/fake/bin/" + name, nil },
	}
}

func TestAll_ReturnsControlPlanePlusPerNodeComponents(t *testing.T) {
	all := All(3)
	names := map[string]bool{}
	for _, c := range all {
		names[c.Name()] = true
	}
	for _, want := range []string{"etcd", "apiserver", "controllermanager", "scheduler", "coredns"} {
		assert.True(t, names[want], want)
	}
	for i := 0; i < 3; i++ {
		for _, want := range []string{fmt.Sprintf("crio-%d", i), fmt.Sprintf("kubelet-%d", i), fmt.Sprintf("proxy-%d", i)} {
			assert.True(t, names[want], want)
		}
	}
}

func TestDependencyChain_WorkerNodeIsCrioThenKubeletThenProxy(t *testing.T) {
	crio := &Crio{Node: 2}
	kubelet := &Kubelet{Node: 2}
	proxy := &Proxy{Node: 2}

	assert.Equal(t, []string{"apiserver"}, crio.Dependencies())
	assert.Equal(t, []string{"crio-2"}, kubelet.Dependencies())
	assert.Equal(t, []string{"kubelet-2"}, proxy.Dependencies())
}

func TestControlPlaneChain(t *testing.T) {
	assert.Empty(t, (&Etcd{}).Dependencies())
	assert.Equal(t, []string{"etcd"}, (&APIServer{}).Dependencies())
	assert.Equal(t, []string{"apiserver"}, (&ControllerManager{}).Dependencies())
	assert.Equal(t, []string{"apiserver"}, (&Scheduler{}).Dependencies())
	assert.Equal(t, []string{"apiserver"}, (&CoreDNS{}).Dependencies())
	assert.Equal(t,
		[]string{"apiserver", "kubelet-0", "kubelet-1", "kubelet-2"},
		(&CoreDNS{Nodes: 3}).Dependencies())
}

func TestDependencyChain_CrioDependsOnAPIServer(t *testing.T) {
	assert.Equal(t, []string{"apiserver"}, (&Crio{Node: 0}).Dependencies())
}

func TestEtcd_BuildArgv(t *testing.T) {
	bctx := testBuildContext(t, 1)
	argv, err := (&Etcd{}).BuildArgv(bctx)
	require.NoError(t, err)
	assert.Contains(t, argv.Path, "etcd")
	assert.Contains(t, argv.Args, "--data-dir="+bctx.Layout.EtcdDataDir())
}

func TestAPIServer_BuildArgv_UsesServiceCIDR(t *testing.T) {
	bctx := testBuildContext(t, 1)
	argv, err := (&APIServer{}).BuildArgv(bctx)
	require.NoError(t, err)
	assert.Contains(t, argv.Args, "--service-cluster-ip-range="+bctx.Plan.ServiceCIDR.String())
}

func TestControllerManager_BuildArgv_AllocatesNodeCIDRsAndDisablesLeaderElection(t *testing.T) {
	bctx := testBuildContext(t, 1)
	argv, err := (&ControllerManager{}).BuildArgv(bctx)
	require.NoError(t, err)
	assert.Contains(t, argv.Args, "--allocate-node-cidrs=true")
	assert.Contains(t, argv.Args, "--cluster-cidr="+bctx.Plan.ClusterCIDR.String())
	assert.Contains(t, argv.Args, "--service-cluster-ip-range="+bctx.Plan.ServiceCIDR.String())
	assert.Contains(t, argv.Args, "--leader-elect=false")
}

func TestKubelet_BuildArgv_UsesPerNodeSocket(t *testing.T) {
	bctx := testBuildContext(t, 2)
	bctx.Node = 1
	kubelet := &Kubelet{Node: 1}
	argv, err := kubelet.BuildArgv(bctx)
	require.NoError(t, err)
	assert.Contains(t, argv.Args, "--container-runtime-endpoint=unix://"+bctx.Layout.CRIOSocket(1))
}

func TestCrio_BuildArgv_WritesPerNodeConfig(t *testing.T) {
	bctx := testBuildContext(t, 4)
	crio := &Crio{Node: 3}
	argv, err := crio.BuildArgv(bctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"--config=" + bctx.Layout.CRIOConf(3)}, argv.Args)
}
