// The config package encapsulates configuration for the difftrack
// command.
//
// All difftrack state is kept within a dedicated base directory: the
// configuration file, persisted baselines (for the disk store), the
// propagation log of the paired store and the log file of the watch
// daemon. When loading the configuration, the first and only argument
// is the path to the base directory rather than the path to the
// configuration file. The designated directory is expected to contain
// a file called 'config' made of lines of space-separated key-value
// pairs. Many paths are derived from the base directory and exposed as
// methods of C.
package config
