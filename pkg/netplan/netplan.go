// Package netplan subdivides one user-supplied CIDR into the service,
// cluster, CRI and per-node ranges kubernix's components need, without any
// of the ranges overlapping. The splitting is done with
// github.com/apparentlymart/go-cidr.
package netplan

import (
	"fmt"
	"math/bits"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"

	"github.com/kubernix/kubernix/pkg/kubernixerrors"
)

// servicePrefixLen is the fixed prefix length carved out for the service
// range: the first /24 of the upper half of the parent CIDR, whose lower
// half is the cluster range.
const servicePrefixLen = 24

// criPrefixLen is the fixed, small prefix length carved out for the CRI
// bridge network.
const criPrefixLen = 28

// Plan is the resolved, disjoint set of subnets and addresses derived from
// one parent CIDR for a cluster of a given node count.
type Plan struct {
	ServiceCIDR         *net.IPNet
	ClusterCIDR         *net.IPNet
	CRICIDR             *net.IPNet
	PerNodeCIDRs        []*net.IPNet
	NodeIPs             []net.IP
	APIAdvertiseIP      net.IP
	DNSServiceIP        net.IP
	KubernetesServiceIP net.IP
}

// Compute splits parentCIDR into service/cluster/CRI ranges and further
// subdivides the cluster range into `nodes` equal-size per-node prefixes.
// It fails with a *kubernixerrors.ConfigError if parentCIDR does not carry
// enough prefix bits for the requested split.
func Compute(parentCIDR string, nodes int) (*Plan, error) {
	if nodes < 1 {
		return nil, &kubernixerrors.ConfigError{Reason: "nodes must be >= 1"}
	}

	_, base, err := net.ParseCIDR(parentCIDR)
	if err != nil {
		return nil, &kubernixerrors.ConfigError{Reason: fmt.Sprintf("invalid cidr %q: %v", parentCIDR, err)}
	}

	basePrefix, totalBits := base.Mask.Size()
	if totalBits != 32 {
		return nil, &kubernixerrors.ConfigError{Reason: "only IPv4 CIDRs are supported"}
	}

	upperHalfPrefix := basePrefix + 1
	if servicePrefixLen < upperHalfPrefix {
		return nil, &kubernixerrors.ConfigError{
			Reason: fmt.Sprintf("cidr %s is too small to carve a /%d service range", parentCIDR, servicePrefixLen),
		}
	}

	lowerHalf, err := cidr.Subnet(base, 1, 0)
	if err != nil {
		return nil, &kubernixerrors.ConfigError{Reason: err.Error()}
	}
	upperHalf, err := cidr.Subnet(base, 1, 1)
	if err != nil {
		return nil, &kubernixerrors.ConfigError{Reason: err.Error()}
	}

	serviceNewBits := servicePrefixLen - upperHalfPrefix
	serviceCIDR, err := cidr.Subnet(upperHalf, serviceNewBits, 0)
	if err != nil {
		return nil, &kubernixerrors.ConfigError{Reason: err.Error()}
	}

	// The CRI range is carved from the sibling block of the same size as
	// the service range, so it never overlaps it.
	criSibling, err := cidr.Subnet(upperHalf, serviceNewBits, 1)
	if err != nil {
		return nil, &kubernixerrors.ConfigError{Reason: err.Error()}
	}
	if criPrefixLen < servicePrefixLen {
		return nil, &kubernixerrors.ConfigError{
			Reason: fmt.Sprintf("cidr %s is too small to also carve a /%d cri range", parentCIDR, criPrefixLen),
		}
	}
	criCIDR, err := cidr.Subnet(criSibling, criPrefixLen-servicePrefixLen, 0)
	if err != nil {
		return nil, &kubernixerrors.ConfigError{Reason: err.Error()}
	}

	clusterCIDR := lowerHalf
	clusterPrefix, _ := clusterCIDR.Mask.Size()

	nodeBits := bitsForCount(nodes)
	if clusterPrefix+nodeBits > 32 {
		return nil, &kubernixerrors.ConfigError{
			Reason: fmt.Sprintf("cidr %s does not have enough prefix bits to split cluster range %s into %d nodes", parentCIDR, clusterCIDR, nodes),
		}
	}

	perNodeCIDRs := make([]*net.IPNet, nodes)
	nodeIPs := make([]net.IP, nodes)
	for i := 0; i < nodes; i++ {
		n, err := cidr.Subnet(clusterCIDR, nodeBits, i)
		if err != nil {
			return nil, &kubernixerrors.ConfigError{Reason: err.Error()}
		}
		perNodeCIDRs[i] = n

		nodePrefix, _ := n.Mask.Size()
		if nodePrefix >= 31 {
			return nil, &kubernixerrors.ConfigError{
				Reason: fmt.Sprintf("per-node cidr %s has no usable host addresses", n),
			}
		}
		host, err := cidr.Host(n, 1)
		if err != nil {
			return nil, &kubernixerrors.ConfigError{Reason: err.Error()}
		}
		nodeIPs[i] = host
	}

	dnsServiceIP, err := cidr.Host(serviceCIDR, 10)
	if err != nil {
		return nil, &kubernixerrors.ConfigError{Reason: err.Error()}
	}
	kubernetesServiceIP, err := cidr.Host(serviceCIDR, 1)
	if err != nil {
		return nil, &kubernixerrors.ConfigError{Reason: err.Error()}
	}

	return &Plan{
		ServiceCIDR:         serviceCIDR,
		ClusterCIDR:         clusterCIDR,
		CRICIDR:             criCIDR,
		PerNodeCIDRs:        perNodeCIDRs,
		NodeIPs:             nodeIPs,
		APIAdvertiseIP:      nodeIPs[0],
		DNSServiceIP:        dnsServiceIP,
		KubernetesServiceIP: kubernetesServiceIP,
	}, nil
}

// CRISubnetForNode carves node i's slice out of the shared CRI range, so
// that each node's CNI bridge gets its own non-overlapping subnet even
// though they all run on a single host.
func (p *Plan) CRISubnetForNode(nodes, i int) (*net.IPNet, error) {
	bits := bitsForCount(nodes)
	prefix, _ := p.CRICIDR.Mask.Size()
	if prefix+bits > 32 {
		return nil, &kubernixerrors.ConfigError{
			Reason: fmt.Sprintf("cri cidr %s does not have enough prefix bits for %d nodes", p.CRICIDR, nodes),
		}
	}
	return cidr.Subnet(p.CRICIDR, bits, i)
}

// bitsForCount returns the number of address bits needed to enumerate n
// equal-size subnets (ceil(log2(n)), with n=1 needing zero bits).
func bitsForCount(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
