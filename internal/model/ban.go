package model

import "fmt"

type BanNamespace string

const (
	BanAccount BanNamespace = "account"
	BanAddress BanNamespace = "address"
	BanDevice  BanNamespace = "device"
)

// BanNamespaces lists every namespace in a stable order.
var BanNamespaces = []BanNamespace{BanAccount, BanAddress, BanDevice}

func ParseBanNamespace(s string) (BanNamespace, error) {
	switch ns := BanNamespace(s); ns {
	case BanAccount, BanAddress, BanDevice:
		return ns, nil
	}
	return "", fmt.Errorf("unknown ban namespace %q", s)
}

type BanEntry struct {
	Namespace BanNamespace `json:"namespace"`
	Value     string       `json:"value"`
}
