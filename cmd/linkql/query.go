package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/syssam/linkql/dynamic"
)

var (
	queryData  string
	queryLines bool
)

var queryCmd = &cobra.Command{
	Use:   "query <op>",
	Short: "Run JSON requests",
	Long: `Run a JSON request and print the JSON response.

The operation is one of select_one, select_all, insert, update and delete.
The request is read from --data, or from stdin. With --lines, stdin holds
one request per line and they run in order through the same service, so
cached select responses are reused.`,
	Example: `  linkql query select_one --data '{"collection":"student","filters":{"id":1},"links":{"courses":null}}'

  linkql query insert < request.json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{dynamic.OpSelectOne, dynamic.OpSelectAll, dynamic.OpInsert, dynamic.OpUpdate, dynamic.OpDelete},
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		svc, closeFn, err := openService(reg)
		if err != nil {
			return err
		}
		defer closeFn()

		var requests [][]byte
		switch {
		case queryData != "":
			requests = [][]byte{[]byte(queryData)}
		case queryLines:
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				if line := bytes.TrimSpace(sc.Bytes()); len(line) > 0 {
					requests = append(requests, append([]byte{}, line...))
				}
			}
			if err := sc.Err(); err != nil {
				return err
			}
		default:
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			requests = [][]byte{b}
		}
		for _, req := range requests {
			resp, err := svc.Do(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	f := queryCmd.Flags()
	f.StringVarP(&queryData, "data", "d", "", "request JSON (default: read from stdin)")
	f.BoolVar(&queryLines, "lines", false, "read one request per stdin line")
}

// writeJSON writes the response indented, followed by a newline.
func writeJSON(w io.Writer, resp []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, resp, "", "  "); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
