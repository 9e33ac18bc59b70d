package main

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"community-server/conf"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const serverType = "CommunityServer"

type InterfaceSpec struct {
	Path   string
	Name   string
	Auth   string
	Method string
}

type ControllerSpec struct {
	Path       string
	Name       string
	Interfaces []*InterfaceSpec
}

var ptName = regexp.MustCompile(`name="(.*?)"`)
var ptFunc = regexp.MustCompile(`method="(.*?)"`)
var ptPath = regexp.MustCompile(`path=("/.*?")`)
var ptAuth = regexp.MustCompile(`auth=(".*?")`)
var ptOpLog = regexp.MustCompile(`opLog=(".*?")`)

var rootCmd = &cobra.Command{
	Use:   "anno",
	Short: "Generate the router and the permit table from handler annotations",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverDir, _ := cmd.Flags().GetString("server")
		routerFile, _ := cmd.Flags().GetString("router")
		permitFile, _ := cmd.Flags().GetString("permit")
		ctrls, permits, err := collect(serverDir)
		if err != nil {
			return err
		}
		router, err := genRouter(ctrls)
		if err != nil {
			return err
		}
		if err = os.WriteFile(routerFile, router, 0o644); err != nil {
			return err
		}
		ymlBytes, err := yaml.Marshal(permits)
		if err != nil {
			return err
		}
		return os.WriteFile(permitFile, ymlBytes, 0o644)
	},
}

func main() {
	rootCmd.Flags().String("server", "../server", "directory holding the annotated server_*.go files")
	rootCmd.Flags().String("router", "../server/router.go", "router file to write")
	rootCmd.Flags().String("permit", "../conf/permit.yml", "permit table to write")
	cobra.CheckErr(rootCmd.Execute())
}

// collect parses every server_*.go file in dir. Files without a
// go:controller annotation are skipped.
func collect(dir string) ([]*ControllerSpec, *conf.PermitSpec, error) {
	fset := token.NewFileSet()
	var ctrls []*ControllerSpec
	authSpec := &conf.PermitSpec{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), "server_") || strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}
		astf, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		controller := &ControllerSpec{}
		if doc := strings.Trim(astf.Doc.Text(), "\t \n"); strings.HasPrefix(doc, "go:controller") {
			parseController(doc, controller)
		}
		if controller.Name == "" {
			return nil
		}
		ast.Inspect(astf, func(n ast.Node) bool {
			t, ok := n.(*ast.FuncDecl)
			if !ok {
				return true
			}
			doc := strings.Trim(t.Doc.Text(), "\t \n")
			if !strings.HasPrefix(doc, "go:interface") {
				return true
			}
			if inter := parseInterface(t.Name.String(), doc, controller, authSpec); inter != nil {
				controller.Interfaces = append(controller.Interfaces, inter)
			}
			return true
		})
		ctrls = append(ctrls, controller)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(authSpec.Authentications, func(i, j int) bool {
		return authSpec.Authentications[i].Url < authSpec.Authentications[j].Url
	})
	sort.Strings(authSpec.WhiteList)
	return ctrls, authSpec, nil
}

func parseController(doc string, ctrl *ControllerSpec) {
	strName := ptName.FindStringSubmatch(doc)
	strPath := ptPath.FindStringSubmatch(doc)
	if len(strName) > 1 {
		ctrl.Name = strName[1]
	}
	if len(strPath) > 1 {
		ctrl.Path = strPath[1]
	}
}

// parseInterface records the route of one handler. Handlers with an auth
// permit go to the permit table, the rest to the white list.
func parseInterface(funcName string, doc string, ctrl *ControllerSpec, auth *conf.PermitSpec) *InterfaceSpec {
	strFunc := ptFunc.FindStringSubmatch(doc)
	strPath := ptPath.FindStringSubmatch(doc)
	strAuth := ptAuth.FindStringSubmatch(doc)
	strLog := ptOpLog.FindStringSubmatch(doc)
	if len(strFunc) < 2 || len(strPath) < 2 || strFunc[1] == "" {
		return nil
	}
	inter := &InterfaceSpec{Name: funcName}
	inter.Method = strings.ToLower(strFunc[1])
	inter.Method = strings.ToUpper(inter.Method[:1]) + inter.Method[1:]
	inter.Path = strPath[1]
	urlPath := strings.Trim(ctrl.Path, "\"") + strings.Trim(inter.Path, "\"")
	opLog := ""
	if len(strLog) > 1 {
		opLog = "|" + strings.Trim(strLog[1], "\"")
	}
	if len(strAuth) > 1 {
		inter.Auth = strings.Trim(strAuth[1], "\"")
		auth.Authentications = append(auth.Authentications, &conf.AuthKV{
			Url:    urlPath,
			Permit: inter.Auth + opLog,
		})
	} else {
		auth.WhiteList = append(auth.WhiteList, urlPath+opLog)
	}
	return inter
}

const routerHeader = `// Code generated by anno. DO NOT EDIT.

package server

import "github.com/gofiber/fiber/v2"
`

// genRouter builds one <name>Register function per controller plus Register,
// which mounts every controller group under root.
func genRouter(ctrls []*ControllerSpec) ([]byte, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", routerHeader, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	register := routerFunc("Register")
	var mounts []ast.Stmt
	for _, ctrl := range ctrls {
		group := routerFunc(ctrl.Name + "Register")
		for _, inter := range ctrl.Interfaces {
			group.Body.List = append(group.Body.List,
				callStmt("root."+inter.Method, str(inter.Path), ident("srv."+inter.Name)))
		}
		f.Decls = append(f.Decls, group)
		register.Body.List = append(register.Body.List, &ast.AssignStmt{
			Lhs: []ast.Expr{ast.NewIdent(ctrl.Name)},
			Tok: token.DEFINE,
			Rhs: []ast.Expr{&ast.CallExpr{Fun: ast.NewIdent("root.Group"), Args: []ast.Expr{str(ctrl.Path)}}},
		})
		mounts = append(mounts, callStmt("srv."+ctrl.Name+"Register", ident(ctrl.Name)))
	}
	register.Body.List = append(register.Body.List, mounts...)
	f.Decls = append(f.Decls, register)

	var buf bytes.Buffer
	if err = format.Node(&buf, fset, f); err != nil {
		return nil, err
	}
	return format.Source(buf.Bytes())
}

// routerFunc declares func (srv *CommunityServer) name(root fiber.Router).
func routerFunc(name string) *ast.FuncDecl {
	return &ast.FuncDecl{
		Name: ast.NewIdent(name),
		Recv: &ast.FieldList{List: []*ast.Field{{
			Names: []*ast.Ident{ast.NewIdent("srv")},
			Type:  &ast.StarExpr{X: ast.NewIdent(serverType)},
		}}},
		Type: &ast.FuncType{Params: &ast.FieldList{List: []*ast.Field{{
			Names: []*ast.Ident{ast.NewIdent("root")},
			Type:  &ast.SelectorExpr{X: ast.NewIdent("fiber"), Sel: ast.NewIdent("Router")},
		}}}},
		Body: &ast.BlockStmt{},
	}
}

func callStmt(fun string, args ...ast.Expr) ast.Stmt {
	return &ast.ExprStmt{X: &ast.CallExpr{Fun: ast.NewIdent(fun), Args: args}}
}

// str expects an already quoted literal.
func str(quoted string) ast.Expr {
	return &ast.BasicLit{Kind: token.STRING, Value: quoted}
}

func ident(name string) ast.Expr {
	return ast.NewIdent(name)
}
