package terminal

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/varscout/varscout/pkg/config"
)

func configureCmd(t *Term, args string) error {
	switch args {
	case "-list":
		return configureList(t)
	case "-save":
		return config.SaveConfig(t.conf)
	case "":
		return fmt.Errorf("wrong number of arguments to \"config\"")
	default:
		return configureSet(t, args)
	}
}

type configureIterator struct {
	cfgValue reflect.Value
	cfgType  reflect.Type
	i        int
}

func iterateConfiguration(conf *config.Config) *configureIterator {
	cfgValue := reflect.ValueOf(conf).Elem()
	cfgType := cfgValue.Type()

	return &configureIterator{cfgValue, cfgType, -1}
}

func (it *configureIterator) Next() bool {
	it.i++
	return it.i < it.cfgValue.NumField()
}

func (it *configureIterator) Field() (name string, field reflect.Value) {
	name = it.cfgType.Field(it.i).Tag.Get("yaml")
	if comma := strings.Index(name, ","); comma >= 0 {
		name = name[:comma]
	}
	field = it.cfgValue.Field(it.i)
	return
}

func configureFindFieldByName(conf *config.Config, name string) reflect.Value {
	it := iterateConfiguration(conf)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == name {
			return field
		}
	}
	return reflect.ValueOf(nil)
}

func configureList(t *Term) error {
	w := new(tabwriter.Writer)
	w.Init(os.Stdout, 0, 8, 1, ' ', 0)

	it := iterateConfiguration(t.conf)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == "" || field.Kind() == reflect.Map {
			continue
		}
		fmt.Fprintf(w, "%s\t%v\n", fieldName, field.Interface())
	}
	return w.Flush()
}

func configureSet(t *Term, args string) error {
	vals := strings.SplitN(args, " ", 2)
	if len(vals) != 2 {
		return fmt.Errorf("wrong number of arguments to \"config\"")
	}
	cfgname := vals[0]
	rest := vals[1]

	field := configureFindFieldByName(t.conf, cfgname)
	if !field.CanAddr() {
		return fmt.Errorf("unknown configuration parameter %q", cfgname)
	}

	switch field.Kind() {
	case reflect.Bool:
		v, err := strconv.ParseBool(rest)
		if err != nil {
			return fmt.Errorf("argument to %q must be true or false", cfgname)
		}
		field.SetBool(v)
	case reflect.String:
		field.SetString(rest)
	default:
		return fmt.Errorf("can not set %s from the terminal", cfgname)
	}
	return nil
}
