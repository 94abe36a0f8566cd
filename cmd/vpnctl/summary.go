package main

import (
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"vpnctl/pkg/vpn"
)

var (
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

func printSummary(w io.Writer, v *vpn.VPN) error {
	endpoints := strings.Join(v.Endpoints(), ", ")
	if endpoints == "" {
		endpoints = "-"
	}
	fmt.Fprint(w, keyValues(
		[2]string{"network", v.Network().String()},
		[2]string{"members", strconv.Itoa(v.Len())},
		[2]string{"remaining", strconv.Itoa(v.Remaining())},
		[2]string{"endpoints", endpoints},
	))
	if v.Len() == 0 {
		return nil
	}

	rows := make([][]string, 0, v.Len())
	for i, p := range v.Peers() {
		endpoint := p.Endpoint
		if endpoint == "" {
			endpoint = "-"
		}
		routes := joinPrefixes(v.Routes(p))
		if routes == "" {
			routes = "-"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), p.Kind.String(), p.Address.String(), endpoint, routes})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "TYPE", "ADDRESS", "ENDPOINT", "ROUTES").
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// keyValues renders aligned "key: value" lines.
func keyValues(pairs ...[2]string) string {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("%-*s", width+1, p[0]+":")) + " " + p[1] + "\n")
	}
	return sb.String()
}

func joinPrefixes(ps []netip.Prefix) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ",")
}
