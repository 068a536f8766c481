package main

import (
	"bytes"
	"context"
	"io"
	"strconv"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// dockerRuntime discovers running containers and reads their logs through
// the Docker Engine API.
type dockerRuntime struct {
	cli *client.Client
}

func newDockerClient(host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}
	return cli, nil
}

// connectDocker pings the daemon until it answers or ctx is done.
func connectDocker(ctx context.Context, host string, sleep sleepFunc) (*dockerRuntime, error) {
	cli, err := newDockerClient(host)
	if err != nil {
		return nil, err
	}
	for {
		logrus.Info("trying to reach the docker daemon")
		_, err := cli.Ping(ctx)
		if err == nil {
			break
		}
		interval := randomRetryInterval()
		logrus.WithError(err).Errorf("problem while connecting to docker, retrying in %s", interval)
		if err := sleep(ctx, interval); err != nil {
			cli.Close()
			return nil, errors.Wrap(err, "gave up connecting to docker")
		}
	}
	if v, err := cli.ServerVersion(ctx); err != nil {
		logrus.WithError(err).Warn("connected to docker but failed to read its version")
	} else {
		logrus.WithFields(logrus.Fields{
			"version":     v.Version,
			"api_version": v.APIVersion,
			"os":          v.Os,
		}).Info("connected to docker")
	}
	return &dockerRuntime{cli: cli}, nil
}

func (r *dockerRuntime) ListContainers(ctx context.Context) ([]runtimeContainer, error) {
	containers, err := r.cli.ContainerList(ctx, dockercontainer.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "docker container list")
	}
	out := make([]runtimeContainer, 0, len(containers))
	for _, c := range containers {
		out = append(out, runtimeContainer{
			ID:     c.ID,
			Labels: c.Labels,
			Names:  c.Names,
		})
	}
	return out, nil
}

func (r *dockerRuntime) FetchLogs(ctx context.Context, id string, since, until int64) (string, error) {
	info, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", errors.Wrapf(err, "failed to inspect container %s", shortID(id))
	}
	rc, err := r.cli.ContainerLogs(ctx, id, dockercontainer.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Since:      strconv.FormatInt(since, 10),
		Until:      strconv.FormatInt(until, 10),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to read logs of container %s", shortID(id))
	}
	defer rc.Close()
	// without a TTY the daemon multiplexes stdout and stderr into one framed
	// stream
	if info.Config != nil && info.Config.Tty {
		bs, err := io.ReadAll(rc)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read logs of container %s", shortID(id))
		}
		return string(bs), nil
	}
	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, rc); err != nil {
		return "", errors.Wrapf(err, "failed to demultiplex logs of container %s", shortID(id))
	}
	return out.String(), nil
}

func (r *dockerRuntime) Close() error {
	return r.cli.Close()
}
