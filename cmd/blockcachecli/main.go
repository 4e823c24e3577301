//  Copyright (c) 2017-2018 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/abiosoft/ishell"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type shellContext struct {
	host   string
	port   int
	client http.Client
}

// script global context
var ctx shellContext

func fetch(c *ishell.Context, path string) ([]byte, bool) {
	resp, err := ctx.client.Get(fmt.Sprintf("http://%s:%d%s", ctx.host, ctx.port, path))
	if err != nil {
		c.Println(color.New(color.FgRed).Sprintf(err.Error()))
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.Println(color.New(color.FgRed).Sprintf("Got code %d from blockcached server", resp.StatusCode))
		return nil, false
	}
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		c.Println(color.New(color.FgRed).Sprintf("error reading response: %s", err))
		return nil, false
	}
	return data, true
}

func showJSON(c *ishell.Context, path string) {
	data, ok := fetch(c, path)
	if !ok {
		return
	}
	var result interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		c.Println(color.New(color.FgRed).Sprintf("error decoding response: %s", err))
		return
	}
	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		c.Println(color.New(color.FgRed).Sprintf("error formatting response: %s", err))
		return
	}
	c.ShowPaged(string(pretty))
}

func show(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println(color.New(color.FgRed).Println("invalid argument for show command"))
		return
	}
	switch c.Args[0] {
	case "memory":
		showJSON(c, "/dbg/memory")
	case "blocks":
		showJSON(c, "/dbg/blocks")
	case "workers":
		showJSON(c, "/dbg/workers")
	case "configs":
		c.Printf("%+v\n", ctx)
	default:
		c.Println(color.New(color.FgRed).Sprintf("unknown target %s", c.Args[0]))
	}
}

func locate(c *ishell.Context) {
	if len(c.Args) != 1 {
		c.Println(color.New(color.FgRed).Println("usage: locate <block name>"))
		return
	}
	showJSON(c, "/dbg/locations/"+c.Args[0])
}

func Execute() {

	// ishell shell
	shell := ishell.New()

	shell.Println("Welcome to BlockCache Cli!")
	shell.AddCmd(&ishell.Cmd{
		Name: "show",
		Help: "`show memory|blocks|workers|configs` inspects the running server",
		Func: show,
		Completer: func(args []string) []string {
			return []string{"memory", "blocks", "workers", "configs"}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "locate",
		Help: "`locate rdd_1_0` shows which workers hold the block",
		Func: locate,
	})

	// cobra command
	cmd := &cobra.Command{
		Use:     "blockcachecli",
		Short:   "BlockCache cli",
		Long:    "BlockCache command line tool to interact with the backend",
		Example: "blockcachecli --host localhost --port 9374",
		Run: func(cmd *cobra.Command, args []string) {
			// read args
			var err error
			ctx.host, err = cmd.Flags().GetString("host")
			if err != nil {
				panic("failed to get blockcached host")
			}
			ctx.port, err = cmd.Flags().GetInt("port")
			if err != nil {
				panic("failed to get blockcached port")
			}

			// config http client
			ctx.client = http.Client{}

			if len(args) > 1 {
				shell.Process(args[1:]...)
			} else {
				shell.Run()
				shell.Close()
			}
		},
	}

	cmd.Flags().StringP("host", "", "localhost", "host of blockcached service")
	cmd.Flags().IntP("port", "p", 9374, "port of blockcached service")
	cmd.Execute()
}

func main() {
	Execute()
}
