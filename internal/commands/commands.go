// Package commands implements the owmctl management commands.
package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/i474232898/owm-weather/internal/geocode"
	"github.com/i474232898/owm-weather/internal/store"
	"github.com/i474232898/owm-weather/internal/weather"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// Env carries the dependencies and streams of one command invocation.
type Env struct {
	Service  *weather.Service
	Geocoder geocode.Geocoder // optional
	In       io.Reader
	Out      io.Writer
	Err      io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, env *Env, args []string) int
}

var commands = map[string]command{
	"create_location":      {"create_location [-name N] [-lat X] [-lon Y] [-timezone TZ] [-place \"City, Country\"]", createLocation},
	"delete_location":      {"delete_location [-yes] ID", deleteLocation},
	"manual_weather_fetch": {"manual_weather_fetch ID", manualWeatherFetch},
	"list_locations":       {"list_locations", listLocations},
}

// Run dispatches args[0] to its command and returns the process exit code.
func Run(ctx context.Context, env Env, args []string) int {
	if len(args) == 0 {
		printUsage(env.Err)
		return ExitUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(env.Err, "Unknown command %q.\n", args[0])
		printUsage(env.Err)
		return ExitUsage
	}
	return cmd.run(ctx, &env, args[1:])
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "Usage: owmctl <command> [flags]")
	fmt.Fprintln(w, "Commands:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func newFlagSet(name string, env *Env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.Err)
	return fs
}

func createLocation(ctx context.Context, env *Env, args []string) int {
	fs := newFlagSet("create_location", env)
	name := fs.String("name", "", "location name")
	lat := fs.String("lat", "", "latitude")
	lon := fs.String("lon", "", "longitude")
	tz := fs.String("timezone", "", "timezone (optional)")
	place := fs.String("place", "", "geocode coordinates for \"City[, State], Country\"")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}

	in := bufio.NewReader(env.In)
	prompt := func(label string) string {
		fmt.Fprint(env.Out, label)
		line, _ := in.ReadString('\n')
		return strings.TrimSpace(line)
	}

	if *place != "" && (*lat == "" || *lon == "") {
		if env.Geocoder == nil {
			fmt.Fprintln(env.Err, "Geocoding is not configured; enter coordinates instead.")
		} else {
			coords, err := env.Geocoder.Lookup(ctx, *place)
			if err != nil {
				fmt.Fprintf(env.Err, "Could not geocode %q: %v\n", *place, err)
				return ExitError
			}
			*lat = strconv.FormatFloat(coords.Latitude, 'f', -1, 64)
			*lon = strconv.FormatFloat(coords.Longitude, 'f', -1, 64)
			if *name == "" {
				*name = *place
			}
		}
	}

	if *name == "" {
		*name = prompt("Enter location name: ")
	}
	if *lat == "" {
		*lat = prompt("Enter latitude: ")
	}
	if *lon == "" {
		*lon = prompt("Enter longitude: ")
	}
	if *tz == "" {
		*tz = prompt("Enter timezone (optional): ")
	}

	loc, err := env.Service.CreateLocation(ctx, weather.LocationForm{
		Name:      *name,
		Latitude:  json.Number(*lat),
		Longitude: json.Number(*lon),
		Timezone:  *tz,
	})
	if err != nil {
		var fe weather.FormErrors
		if errors.As(err, &fe) {
			for _, field := range []string{"name", "latitude", "longitude", "timezone"} {
				if msg, ok := fe[field]; ok {
					fmt.Fprintf(env.Err, "Invalid %s: %s\n", field, msg)
				}
			}
			return ExitError
		}
		fmt.Fprintln(env.Err, err)
		return ExitError
	}
	fmt.Fprintf(env.Out, "Successfully created location '%s' with ID %d.\n", loc.Name, loc.ID)
	return ExitOK
}

// resolve loads the location named by the single positional argument.
func resolve(ctx context.Context, env *Env, fs *flag.FlagSet) (weather.Location, int) {
	if fs.NArg() != 1 {
		fmt.Fprintf(env.Err, "%s expects exactly one location ID.\n", fs.Name())
		return weather.Location{}, ExitUsage
	}
	ref := fs.Arg(0)
	loc, err := env.Service.ResolveLocation(ctx, ref)
	if err != nil {
		if store.IsNotFound(err) || errors.Is(err, weather.ErrInvalidLocationRef) {
			fmt.Fprintf(env.Err, "Location with ID %s does not exist.\n", ref)
			return weather.Location{}, ExitError
		}
		fmt.Fprintln(env.Err, err)
		return weather.Location{}, ExitError
	}
	return loc, ExitOK
}

func deleteLocation(ctx context.Context, env *Env, args []string) int {
	fs := newFlagSet("delete_location", env)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	loc, code := resolve(ctx, env, fs)
	if code != ExitOK {
		return code
	}

	if !*yes {
		fmt.Fprintf(env.Out, "Are you sure you want to delete location '%s'? (y/N): ", loc.Name)
		answer, _ := bufio.NewReader(env.In).ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(env.Out, "Deletion cancelled.")
			return ExitOK
		}
	}

	if err := env.Service.DeleteLocation(ctx, loc); err != nil {
		fmt.Fprintln(env.Err, err)
		return ExitError
	}
	fmt.Fprintf(env.Out, "Successfully deleted location '%s'.\n", loc.Name)
	return ExitOK
}

func manualWeatherFetch(ctx context.Context, env *Env, args []string) int {
	fs := newFlagSet("manual_weather_fetch", env)
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	loc, code := resolve(ctx, env, fs)
	if code != ExitOK {
		return code
	}

	res, err := env.Service.FetchWeather(ctx, loc.ID)
	if err != nil {
		fmt.Fprintf(env.Err, "Failed to fetch weather data for location '%s': %v\n", loc.Name, err)
		return ExitError
	}
	if res.Fetched == 0 {
		fmt.Fprintf(env.Err, "Failed to fetch weather data for location '%s'.\n", loc.Name)
		return ExitError
	}
	fmt.Fprintf(env.Out, "Successfully fetched weather data for location '%s'.\n", loc.Name)
	return ExitOK
}

func listLocations(ctx context.Context, env *Env, args []string) int {
	fs := newFlagSet("list_locations", env)
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	locations, err := env.Service.ListLocations(ctx)
	if err != nil {
		fmt.Fprintln(env.Err, err)
		return ExitError
	}
	if len(locations) == 0 {
		fmt.Fprintln(env.Out, "No weather locations found.")
		return ExitOK
	}
	for _, loc := range locations {
		fmt.Fprintf(env.Out, "ID: %d, Name: %s\n", loc.ID, loc.Name)
	}
	return ExitOK
}
