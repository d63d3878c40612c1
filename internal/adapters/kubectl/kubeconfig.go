package kubectl

import (
	"fmt"

	"k8s.io/client-go/tools/clientcmd"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
)

// KubeconfigInfo identifies the cluster a kubeconfig points at.
// It never carries credentials.
type KubeconfigInfo struct {
	Path    string `json:"path"`
	Context string `json:"context"`
	Cluster string `json:"cluster"`
	Server  string `json:"server"`
}

// ValidateKubeconfig loads the kubeconfig at path and checks that its
// current context resolves to a usable cluster.
func ValidateKubeconfig(path string) (*KubeconfigInfo, error) {
	if path == "" {
		return nil, core.ErrValidation(core.CodeInvalidKubeconfig, "kubeconfig path is required")
	}

	raw, err := clientcmd.LoadFromFile(path)
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidKubeconfig,
			fmt.Sprintf("loading kubeconfig %s", path)).WithCause(err)
	}

	restCfg, err := clientcmd.NewDefaultClientConfig(*raw, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, core.ErrValidation(core.CodeInvalidKubeconfig,
			fmt.Sprintf("kubeconfig %s is not usable", path)).WithCause(err)
	}

	info := &KubeconfigInfo{
		Path:    path,
		Context: raw.CurrentContext,
		Server:  restCfg.Host,
	}
	if ctx, ok := raw.Contexts[raw.CurrentContext]; ok {
		info.Cluster = ctx.Cluster
	}
	return info, nil
}
