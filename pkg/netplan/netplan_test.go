package netplan

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Disjoint(t *testing.T) {
	cases := []struct {
		cidr  string
		nodes int
	}{
		{"10.10.0.0/16", 1},
		{"10.20.0.0/16", 3},
		{"10.0.0.0/12", 8},
		{"192.168.0.0/17", 4},
	}

	for _, tc := range cases {
		plan, err := Compute(tc.cidr, tc.nodes)
		require.NoError(t, err, tc.cidr)

		ranges := map[string]*net.IPNet{
			"service": plan.ServiceCIDR,
			"cluster": plan.ClusterCIDR,
			"cri":     plan.CRICIDR,
		}
		for aName, a := range ranges {
			for bName, b := range ranges {
				if aName == bName {
					continue
				}
				overlap := a.Contains(b.IP) || b.Contains(a.IP)
				assert.False(t, overlap, "%s (%s) and %s (%s) overlap for parent %s", aName, a, bName, b, tc.cidr)
			}
		}

		require.Len(t, plan.PerNodeCIDRs, tc.nodes)
		for _, n := range plan.PerNodeCIDRs {
			assert.True(t, plan.ClusterCIDR.Contains(n.IP), "per-node cidr %s not contained in cluster cidr %s", n, plan.ClusterCIDR)
		}

		assert.True(t, plan.ServiceCIDR.Contains(plan.DNSServiceIP), "dns service ip not in service cidr")
		assert.True(t, plan.ServiceCIDR.Contains(plan.KubernetesServiceIP), "kubernetes service ip not in service cidr")
		assert.Equal(t, plan.NodeIPs[0], plan.APIAdvertiseIP)
	}
}

func TestCompute_TooSmallForNodes(t *testing.T) {
	_, err := Compute("10.0.0.0/28", 8)
	assert.Error(t, err)
}

func TestCompute_SingleNodeHasOnePerNodeCIDR(t *testing.T) {
	plan, err := Compute("10.10.0.0/16", 1)
	require.NoError(t, err)
	assert.Len(t, plan.PerNodeCIDRs, 1)
}

func TestCompute_InvalidCIDR(t *testing.T) {
	_, err := Compute("not-a-cidr", 1)
	assert.Error(t, err)
}

func TestCompute_MultiNodeSplitIsEqual(t *testing.T) {
	plan, err := Compute("10.20.0.0/16", 3)
	require.NoError(t, err)
	prefix, _ := plan.PerNodeCIDRs[0].Mask.Size()
	for _, n := range plan.PerNodeCIDRs {
		p, _ := n.Mask.Size()
		assert.Equal(t, prefix, p)
	}
}
